// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// snapNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	snapNamespace = "snap"

	gameSubsystem    = "game"
	networkSubsystem = "network"

	// 以下为当前使用的通用标签名。
	transportLabelName = "transport"
	reasonLabelName    = "reason"
	resultLabelName    = "result"
)

// 标签取值。
const (
	ReasonQueueFull  = "queue_full"
	ReasonClosed     = "closed"
	ReasonEncode     = "encode"
	ReasonUnattached = "unattached"

	ResultOK       = "ok"
	ResultNotFound = "not_found"
	ResultFailed   = "failed"
)

var (
	registerOnce sync.Once

	// GamesActive 为当前占用中的槽位数。
	GamesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: snapNamespace,
		Subsystem: gameSubsystem,
		Name:      "active",
		Help:      "number of occupied game slots",
	})

	GameSlotsFree = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: snapNamespace,
		Subsystem: gameSubsystem,
		Name:      "slots_free",
		Help:      "number of free game slots",
	})

	GamesCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: snapNamespace,
		Subsystem: gameSubsystem,
		Name:      "created_total",
		Help:      "number of games created",
	})

	GamesRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: snapNamespace,
		Subsystem: gameSubsystem,
		Name:      "server_full_total",
		Help:      "number of create requests rejected because every slot was occupied",
	})

	GamesDestroyed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: snapNamespace,
		Subsystem: gameSubsystem,
		Name:      "destroyed_total",
		Help:      "number of games destroyed",
	})

	// GamesStaleDestroy 统计因槽位已被回收而被吸收为空操作的 destroy 次数。
	GamesStaleDestroy = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: snapNamespace,
		Subsystem: gameSubsystem,
		Name:      "stale_destroy_total",
		Help:      "number of destroy calls absorbed as no-op because the game was already gone",
	})

	MessagesRouted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: snapNamespace,
		Subsystem: gameSubsystem,
		Name:      "messages_routed_total",
		Help:      "number of inbound messages routed to a game",
	}, []string{resultLabelName})

	ConnectionsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: snapNamespace,
		Subsystem: networkSubsystem,
		Name:      "connections_active",
		Help:      "number of open connection pumps",
	}, []string{transportLabelName})

	OutboundDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: snapNamespace,
		Subsystem: networkSubsystem,
		Name:      "outbound_dropped_total",
		Help:      "number of outbound messages that could not be queued",
	}, []string{reasonLabelName})

	MalformedFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: snapNamespace,
		Subsystem: networkSubsystem,
		Name:      "malformed_frames_total",
		Help:      "number of inbound frames that failed to decode",
	})

	metricRegisterer prometheus.Registerer
)

// GetRegisterer 返回全局 Prometheus Registerer。
// 如果尚未通过 Register 显式设置，则返回 prometheus.DefaultRegisterer。
func GetRegisterer() prometheus.Registerer {
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register 注册当前定义的所有指标，重复调用只生效一次。
func Register(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(GamesActive)
		r.MustRegister(GameSlotsFree)
		r.MustRegister(GamesCreated)
		r.MustRegister(GamesRejected)
		r.MustRegister(GamesDestroyed)
		r.MustRegister(GamesStaleDestroy)
		r.MustRegister(MessagesRouted)
		r.MustRegister(ConnectionsActive)
		r.MustRegister(OutboundDropped)
		r.MustRegister(MalformedFrames)
		metricRegisterer = r
	})
}
