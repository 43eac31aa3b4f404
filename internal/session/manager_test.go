package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/atomic"

	"github.com/lk2023060901/snap-garden-go/internal/network/message"
	"github.com/lk2023060901/snap-garden-go/pkg/util/merr"
	"github.com/lk2023060901/snap-garden-go/pkg/util/typeutil"
)

// echoGame 对每条输入向所有座位广播 (sender, value)，并记录收到的消息数。
type echoGame struct {
	players  int
	received int
	// outOfRange 为 true 时返回一个越界的座位号。
	outOfRange bool
}

type echoOut struct {
	From  PlayerNumber
	Value int
	Count int
}

func (g *echoGame) NumPlayers() int { return g.players }

func (g *echoGame) PlayerAction(msg message.Inbound[PlayerNumber, int]) []message.Outbound[PlayerNumber, echoOut] {
	g.received++
	if g.outOfRange {
		return []message.Outbound[PlayerNumber, echoOut]{message.NewOutbound(g.players, echoOut{})}
	}
	out := make([]message.Outbound[PlayerNumber, echoOut], 0, g.players)
	for p := 0; p < g.players; p++ {
		out = append(out, message.NewOutbound(p, echoOut{From: msg.Sender, Value: msg.Message, Count: g.received}))
	}
	return out
}

type testManager = Manager[*echoGame, int, echoOut]

func newTestManager(t *testing.T, maxGames, players int) *testManager {
	m, err := NewManager[*echoGame, int, echoOut](maxGames, func() *echoGame {
		return &echoGame{players: players}
	})
	require.NoError(t, err)
	return m
}

type ManagerSuite struct {
	suite.Suite
}

func (s *ManagerSuite) TestInvalidArguments() {
	_, err := NewManager[*echoGame, int, echoOut](0, func() *echoGame { return &echoGame{players: 2} })
	s.ErrorIs(err, merr.ErrParameterInvalid)

	_, err = NewManager[*echoGame, int, echoOut](1, nil)
	s.ErrorIs(err, merr.ErrParameterInvalid)

	_, err = NewManager[*echoGame, int, echoOut](1, func() *echoGame { return &echoGame{} })
	s.ErrorIs(err, merr.ErrParameterInvalid)
}

func (s *ManagerSuite) TestCreateUntilFull() {
	m := newTestManager(s.T(), 2, 2)

	users, err := m.Create()
	s.NoError(err)
	s.Equal([]UserID{1, 2}, users)

	users, err = m.Create()
	s.NoError(err)
	s.Equal([]UserID{3, 4}, users)

	_, err = m.Create()
	s.ErrorIs(err, merr.ErrServerFull)
	s.True(merr.IsRetryableErr(err))

	destroyed, err := m.Destroy(1)
	s.NoError(err)
	s.Equal([]UserID{1, 2}, destroyed)

	users, err = m.Create()
	s.NoError(err)
	s.Len(users, 2)
	for _, u := range users {
		s.NotContains([]UserID{1, 2, 3, 4}, u)
	}
}

func (s *ManagerSuite) TestIDsUnique() {
	m := newTestManager(s.T(), 5, 3)
	seen := typeutil.NewSet[UserID]()
	for i := 0; i < 5; i++ {
		users, err := m.Create()
		s.Require().NoError(err)
		s.Len(users, 3)
		seen.Insert(users...)
	}
	s.Equal(15, seen.Len())
}

func (s *ManagerSuite) TestLocateAndMembers() {
	m := newTestManager(s.T(), 2, 3)
	users, err := m.Create()
	s.Require().NoError(err)

	ref, err := m.Locate(users[1])
	s.NoError(err)
	for _, u := range users {
		other, err := m.Locate(u)
		s.NoError(err)
		s.Equal(ref, other)
	}

	members, err := m.MembersOf(users[2])
	s.NoError(err)
	s.Equal(users, members)

	_, err = m.Locate(999)
	s.ErrorIs(err, merr.ErrGameNotFound)
	_, err = m.MembersOf(999)
	s.ErrorIs(err, merr.ErrGameNotFound)
}

func (s *ManagerSuite) TestHandleMessageMapsPlayers() {
	m := newTestManager(s.T(), 5, 3)
	for i := 0; i < 2; i++ {
		_, err := m.Create()
		s.Require().NoError(err)
	}
	users, err := m.Create()
	s.Require().NoError(err)

	for player, sender := range users {
		out, err := m.HandleMessage(message.NewInbound(sender, 99))
		s.Require().NoError(err)
		s.Len(out, 3)
		for i, o := range out {
			s.Equal(users[i], o.Recipient)
			s.Equal(99, o.Message.Value)
			s.Equal(player, o.Message.From)
		}
	}
}

func (s *ManagerSuite) TestHandleMessageUnknownUser() {
	m := newTestManager(s.T(), 1, 2)
	_, err := m.HandleMessage(message.NewInbound(UserID(42), 1))
	s.ErrorIs(err, merr.ErrGameNotFound)
}

func (s *ManagerSuite) TestHandleMessageRecipientOutOfRange() {
	m, err := NewManager[*echoGame, int, echoOut](1, func() *echoGame {
		return &echoGame{players: 2, outOfRange: true}
	})
	s.Require().NoError(err)
	users, err := m.Create()
	s.Require().NoError(err)

	_, err = m.HandleMessage(message.NewInbound(users[0], 1))
	s.True(merr.IsUnexpected(err))
}

func (s *ManagerSuite) TestDestroyRemovesAllMembers() {
	m := newTestManager(s.T(), 2, 3)
	users, err := m.Create()
	s.Require().NoError(err)
	other, err := m.Create()
	s.Require().NoError(err)

	destroyed, err := m.Destroy(users[1])
	s.NoError(err)
	s.ElementsMatch(users, destroyed)
	for _, u := range users {
		_, err := m.Locate(u)
		s.ErrorIs(err, merr.ErrGameNotFound)
	}

	// 其它对局不受影响。
	members, err := m.MembersOf(other[0])
	s.NoError(err)
	s.Equal(other, members)

	stats := m.Stats()
	s.Equal(2, stats.Capacity)
	s.Equal(1, stats.Active)
	s.Equal(1, stats.Free)
	s.Equal(3, stats.Users)
}

func (s *ManagerSuite) TestDestroyTwice() {
	m := newTestManager(s.T(), 2, 2)
	users, err := m.Create()
	s.Require().NoError(err)
	other, err := m.Create()
	s.Require().NoError(err)

	_, err = m.Destroy(users[0])
	s.NoError(err)

	destroyed, err := m.Destroy(users[0])
	s.NoError(err)
	s.Empty(destroyed)
	destroyed, err = m.Destroy(users[1])
	s.NoError(err)
	s.Empty(destroyed)

	members, err := m.MembersOf(other[1])
	s.NoError(err)
	s.Equal(other, members)
	s.Equal(1, m.Stats().Free)
}

func (s *ManagerSuite) TestStaleReferenceAfterReuse() {
	m := newTestManager(s.T(), 1, 2)
	old, err := m.Create()
	s.Require().NoError(err)
	staleRef, err := m.Locate(old[0])
	s.Require().NoError(err)

	_, err = m.Destroy(old[0])
	s.Require().NoError(err)

	fresh, err := m.Create()
	s.Require().NoError(err)
	freshRef, err := m.Locate(fresh[0])
	s.Require().NoError(err)
	s.Equal(staleRef.Index, freshRef.Index)
	s.NotEqual(staleRef.ID, freshRef.ID)

	// 模拟“查目录后、加锁前”槽位被复用：把旧参与者以旧引用重新放回目录。
	m.users.Insert(old[0], staleRef)

	_, err = m.HandleMessage(message.NewInbound(old[0], 7))
	s.ErrorIs(err, merr.ErrGameNotFound)
	_, err = m.MembersOf(old[0])
	s.ErrorIs(err, merr.ErrGameNotFound)

	destroyed, err := m.Destroy(old[0])
	s.NoError(err)
	s.Empty(destroyed)

	// 新对局状态未被修改，仍然存在。
	out, err := m.HandleMessage(message.NewInbound(fresh[0], 1))
	s.NoError(err)
	s.Equal(1, out[0].Message.Count)
	members, err := m.MembersOf(fresh[1])
	s.NoError(err)
	s.Equal(fresh, members)
}

func (s *ManagerSuite) TestRosterInconsistency() {
	m := newTestManager(s.T(), 1, 2)
	users, err := m.Create()
	s.Require().NoError(err)
	ref, err := m.Locate(users[0])
	s.Require().NoError(err)

	m.users.Insert(12345, ref)
	_, err = m.HandleMessage(message.NewInbound(UserID(12345), 1))
	s.True(merr.IsUnexpected(err))
}

func TestManager(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func TestConcurrentCreateDestroy(t *testing.T) {
	const (
		slots   = 4
		workers = 16
		rounds  = 50
	)
	m := newTestManager(t, slots, 2)

	var (
		mu   sync.Mutex
		seen = make(map[UserID]struct{})
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				users, err := m.Create()
				if err != nil {
					assert.ErrorIs(t, err, merr.ErrServerFull)
					continue
				}
				mu.Lock()
				for _, u := range users {
					_, dup := seen[u]
					assert.False(t, dup)
					seen[u] = struct{}{}
				}
				mu.Unlock()

				_, err = m.HandleMessage(message.NewInbound(users[0], r))
				assert.NoError(t, err)

				// 两个参与者几乎同时断开，只有一次 destroy 返回名单。
				var (
					inner    sync.WaitGroup
					returned [2][]UserID
				)
				for i := range users {
					inner.Add(1)
					go func(i int) {
						defer inner.Done()
						got, err := m.Destroy(users[i])
						assert.NoError(t, err)
						returned[i] = got
					}(i)
				}
				inner.Wait()
				assert.Equal(t, 2, len(returned[0])+len(returned[1]))
			}
		}()
	}
	wg.Wait()

	stats := m.Stats()
	assert.Equal(t, slots, stats.Free)
	assert.Equal(t, 0, stats.Active)
	assert.Equal(t, 0, stats.Users)
}

// Destroy 与 Create 并发：Destroy 查到新对局的第一个参与者时，其余参与者的目录项也必须随之删除。
func TestDestroyDuringCreateLeavesNoDirectoryEntries(t *testing.T) {
	const rounds = 2000
	m := newTestManager(t, 1, 3)

	for r := 0; r < rounds; r++ {
		first := m.userIDs.Load() + 1
		var created atomic.Bool
		done := make(chan struct{})
		go func() {
			defer close(done)
			for !created.Load() {
				if got, _ := m.Destroy(first); len(got) > 0 {
					return
				}
			}
		}()

		users, err := m.Create()
		require.NoError(t, err)
		require.Equal(t, first, users[0])
		created.Store(true)
		<-done

		_, err = m.Destroy(users[0])
		require.NoError(t, err)
		stats := m.Stats()
		require.Zero(t, stats.Users, "round %d", r)
		require.Equal(t, 1, stats.Free)
	}
}
