package gateway

import (
	"github.com/blang/semver/v4"

	"github.com/lk2023060901/snap-garden-go/pkg/util/merr"
)

// Welcome 为连接挂接到对局后发送的第一帧。
//
// 创建对局的连接会在 JoinIDs 中收到其余座位的参与者 ID，用于分享给其他玩家加入。
type Welcome struct {
	UserID  uint64   `json:"user_id"`
	Player  int      `json:"player"`
	JoinIDs []uint64 `json:"join_ids,omitempty"`
}

// 握手动作。
const (
	ActionCreate = "create"
	ActionJoin   = "join"
)

// Hello 为裸 TCP 连接上客户端发送的第一帧，用于选择创建或加入对局。
type Hello struct {
	Action  string `json:"action"`
	UserID  uint64 `json:"user_id,omitempty"`
	Version string `json:"version,omitempty"`
}

// VersionHeader 为 WebSocket 握手时携带客户端版本的 HTTP 头。
const VersionHeader = "X-Snap-Client-Version"

// versionPolicy 校验客户端版本不低于配置的最小版本，未配置或客户端未上报时放行。
type versionPolicy struct {
	min *semver.Version
}

func newVersionPolicy(min string) (versionPolicy, error) {
	if min == "" {
		return versionPolicy{}, nil
	}
	v, err := semver.ParseTolerant(min)
	if err != nil {
		return versionPolicy{}, merr.WrapErrParameterInvalidMsg("bad min client version %q: %s", min, err.Error())
	}
	return versionPolicy{min: &v}, nil
}

func (p versionPolicy) check(got string) error {
	if p.min == nil || got == "" {
		return nil
	}
	v, err := semver.ParseTolerant(got)
	if err != nil {
		return merr.WrapErrVersionMismatch(got, p.min.String(), "unparsable client version")
	}
	if v.LT(*p.min) {
		return merr.WrapErrVersionMismatch(got, p.min.String())
	}
	return nil
}
