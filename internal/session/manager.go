// Package session 实现对局槽位表：在固定数量的槽位上并发地创建、定位和销毁对局。
package session

import (
	"sync"

	"github.com/samber/lo"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/snap-garden-go/internal/network/message"
	"github.com/lk2023060901/snap-garden-go/pkg/log"
	"github.com/lk2023060901/snap-garden-go/pkg/metrics"
	"github.com/lk2023060901/snap-garden-go/pkg/util/merr"
	"github.com/lk2023060901/snap-garden-go/pkg/util/typeutil"
)

// Ref 指向某个槽位中的某一局对局。
//
// 槽位会被复用，只有当槽位当前对局的代际 ID 与 ID 相等时引用才有效。
type Ref struct {
	Index int
	ID    GameID
}

type container[G any] struct {
	game  G
	id    GameID
	users []UserID
}

type slot[G any] struct {
	mu sync.RWMutex
	c  *container[G]
}

// Stats 为槽位表的瞬时统计。
type Stats struct {
	Capacity int `json:"capacity"`
	Active   int `json:"active"`
	Free     int `json:"free"`
	Users    int `json:"users"`
}

// Manager 维护固定数量的对局槽位、空闲槽位列表以及参与者目录。
//
// 锁的粒度：
//   - 空闲列表有独立的互斥锁，仅在弹出/归还槽位下标时短暂持有；
//   - 每个槽位有自己的读写锁，不同对局之间互不阻塞；
//   - 参与者目录为并发 map，查询不持有任何槽位锁。
type Manager[G Game[I, O], I any, O any] struct {
	slots []slot[G]

	freeMu sync.Mutex
	free   []int

	users *typeutil.ConcurrentMap[UserID, Ref]

	userIDs atomic.Uint64
	gameIDs atomic.Uint64

	newGame    func() G
	numPlayers int

	logger *log.MLogger
}

// NewManager 创建一个拥有 maxGames 个槽位的 Manager，newGame 用于构造每局的初始状态。
func NewManager[G Game[I, O], I any, O any](maxGames int, newGame func() G) (*Manager[G, I, O], error) {
	if maxGames <= 0 {
		return nil, merr.WrapErrParameterInvalidMsg("max games must be positive, got %d", maxGames)
	}
	if newGame == nil {
		return nil, merr.WrapErrParameterInvalidMsg("game constructor is nil")
	}
	numPlayers := newGame().NumPlayers()
	if numPlayers <= 0 {
		return nil, merr.WrapErrParameterInvalidMsg("game must have at least one player, got %d", numPlayers)
	}

	free := make([]int, maxGames)
	for i := range free {
		free[i] = i
	}
	m := &Manager[G, I, O]{
		slots:      make([]slot[G], maxGames),
		free:       free,
		users:      typeutil.NewConcurrentMap[UserID, Ref](),
		newGame:    newGame,
		numPlayers: numPlayers,
		logger:     log.With(log.FieldModule("session")),
	}
	metrics.GameSlotsFree.Set(float64(maxGames))
	metrics.GamesActive.Set(0)
	return m, nil
}

// NumPlayers 返回每局的参与者人数。
func (m *Manager[G, I, O]) NumPlayers() int {
	return m.numPlayers
}

// Create 占用一个空闲槽位创建新对局，返回按座位号排列的参与者 ID。
//
// 没有空闲槽位时立即返回 ErrServerFull，不会阻塞等待。
func (m *Manager[G, I, O]) Create() ([]UserID, error) {
	m.freeMu.Lock()
	if len(m.free) == 0 {
		m.freeMu.Unlock()
		metrics.GamesRejected.Inc()
		return nil, merr.WrapErrServerFull(len(m.slots))
	}
	index := m.free[len(m.free)-1]
	m.free = m.free[:len(m.free)-1]
	m.freeMu.Unlock()

	users := make([]UserID, m.numPlayers)
	for i := range users {
		users[i] = m.userIDs.Inc()
	}
	c := &container[G]{
		game:  m.newGame(),
		id:    m.gameIDs.Inc(),
		users: users,
	}
	ref := Ref{Index: index, ID: c.id}

	// 目录项在持有槽位锁时写入：并发的 Destroy 一旦查到其中任意一个 ID，
	// 就必须等到全部目录项写完才能拿到槽位锁，之后的 CompareAndRemove 不会漏删。
	s := &m.slots[index]
	s.mu.Lock()
	s.c = c
	for _, user := range users {
		m.users.Insert(user, ref)
	}
	s.mu.Unlock()

	metrics.GamesCreated.Inc()
	metrics.GamesActive.Inc()
	metrics.GameSlotsFree.Dec()
	m.logger.Debug("game created", log.FieldSlot(index), log.FieldGameID(c.id), zap.Uint64s("users", users))
	return append([]UserID(nil), users...), nil
}

// Locate 返回参与者所在对局的引用，不获取任何槽位锁。
func (m *Manager[G, I, O]) Locate(user UserID) (Ref, error) {
	ref, ok := m.users.Get(user)
	if !ok {
		return Ref{}, merr.WrapErrGameNotFound(user)
	}
	return ref, nil
}

// WithSession 在持有对局槽位写锁的情况下执行 fn。
//
// fn 收到参与者的座位号、对局状态以及完整的参与者列表（只读）；不得在 fn 之外保留对它们的引用。
// 对局已被销毁或槽位已被复用时返回 ErrGameNotFound；参与者不在对局名单中时返回 ErrUnexpected。
func (m *Manager[G, I, O]) WithSession(user UserID, fn func(player PlayerNumber, game G, users []UserID) error) error {
	ref, err := m.Locate(user)
	if err != nil {
		return err
	}

	s := &m.slots[ref.Index]
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.c
	if c == nil || c.id != ref.ID {
		return merr.WrapErrGameNotFound(user, "stale reference")
	}
	player := lo.IndexOf(c.users, user)
	if player < 0 {
		m.logger.Error("participant missing from its own game roster",
			log.FieldUserID(user), log.FieldSlot(ref.Index), log.FieldGameID(c.id))
		return merr.WrapErrUnexpected("participant missing from roster")
	}
	return fn(player, c.game, c.users)
}

// HandleMessage 将入站消息交给发送者所在对局处理，并把以座位号寻址的结果映射回参与者 ID。
func (m *Manager[G, I, O]) HandleMessage(msg message.Inbound[UserID, I]) ([]message.Outbound[UserID, O], error) {
	var out []message.Outbound[UserID, O]
	err := m.WithSession(msg.Sender, func(player PlayerNumber, game G, users []UserID) error {
		responses := game.PlayerAction(message.NewInbound(player, msg.Message))
		out = make([]message.Outbound[UserID, O], 0, len(responses))
		for _, r := range responses {
			if r.Recipient < 0 || r.Recipient >= len(users) {
				m.logger.Error("game addressed a player outside its roster",
					log.FieldUserID(msg.Sender), zap.Int("recipient", r.Recipient), zap.Int("players", len(users)))
				return merr.WrapErrUnexpected("recipient out of range")
			}
			out = append(out, message.NewOutbound(users[r.Recipient], r.Message))
		}
		return nil
	})
	if err != nil {
		metrics.MessagesRouted.WithLabelValues(routeResult(err)).Inc()
		return nil, err
	}
	metrics.MessagesRouted.WithLabelValues(metrics.ResultOK).Inc()
	return out, nil
}

// MembersOf 返回参与者所在对局的全部参与者 ID（按座位号排列）。
func (m *Manager[G, I, O]) MembersOf(user UserID) ([]UserID, error) {
	ref, err := m.Locate(user)
	if err != nil {
		return nil, err
	}

	s := &m.slots[ref.Index]
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.c
	if c == nil || c.id != ref.ID {
		return nil, merr.WrapErrGameNotFound(user, "stale reference")
	}
	users := make([]UserID, len(c.users))
	copy(users, c.users)
	return users, nil
}

// Destroy 销毁参与者所在的对局，返回该局全部参与者 ID，供调用方通知并断开其余连接。
//
// 对局已被销毁（参与者不在目录中，或槽位已空/已被复用）时视为成功的空操作，返回空列表。
func (m *Manager[G, I, O]) Destroy(user UserID) ([]UserID, error) {
	ref, ok := m.users.Get(user)
	if !ok {
		metrics.GamesStaleDestroy.Inc()
		return []UserID{}, nil
	}

	s := &m.slots[ref.Index]
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.c
	if c == nil || c.id != ref.ID {
		metrics.GamesStaleDestroy.Inc()
		m.logger.Debug("destroy raced with another destroy, ignored",
			log.FieldUserID(user), log.FieldSlot(ref.Index), log.FieldGameID(ref.ID))
		return []UserID{}, nil
	}
	s.c = nil

	for _, u := range c.users {
		m.users.CompareAndRemove(u, ref)
	}

	m.freeMu.Lock()
	m.free = append(m.free, ref.Index)
	m.freeMu.Unlock()

	metrics.GamesDestroyed.Inc()
	metrics.GamesActive.Dec()
	metrics.GameSlotsFree.Inc()
	m.logger.Debug("game destroyed", log.FieldSlot(ref.Index), log.FieldGameID(c.id), zap.Uint64s("users", c.users))
	return c.users, nil
}

// Stats 返回槽位表的瞬时统计。
func (m *Manager[G, I, O]) Stats() Stats {
	m.freeMu.Lock()
	free := len(m.free)
	m.freeMu.Unlock()
	return Stats{
		Capacity: len(m.slots),
		Active:   len(m.slots) - free,
		Free:     free,
		Users:    m.users.Len(),
	}
}

func routeResult(err error) string {
	if merr.IsUnexpected(err) {
		return metrics.ResultFailed
	}
	return metrics.ResultNotFound
}
