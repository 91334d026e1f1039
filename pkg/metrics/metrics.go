package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 API 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		DispatchTotal, DispatchDuration,
		RelayEventsTotal, TransportSendTotal,
		InstanceTicksTotal, InstanceMessagesTotal, InstancesByState,
		RateLimitWaitSeconds,
	)
}

// DispatchTotal Gateway dispatch 次数（按 model_key 与结果分类）
var DispatchTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "clawlink_dispatch_total",
		Help: "Dispatch 次数（按 model_key 与 outcome）",
	},
	[]string{"model_key", "outcome"}, // ok | Unauthorized | RateLimited | ...
)

// DispatchDuration 单次 dispatch 耗时（秒）
var DispatchDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "clawlink_dispatch_duration_seconds",
		Help:    "Dispatch 耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"model_key"},
)

// RelayEventsTotal 入站事件处理结果
var RelayEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "clawlink_relay_events_total",
		Help: "Webhook 入站事件数（按 outcome）",
	},
	[]string{"outcome"}, // relayed | ignored | provider_failure | transport_failure
)

// TransportSendTotal 出站发送次数
var TransportSendTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "clawlink_transport_send_total",
		Help: "Chat Transport 发送次数",
	},
	[]string{"channel", "status"}, // ok | failed
)

// InstanceTicksTotal Runtime tick 次数
var InstanceTicksTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "clawlink_instance_ticks_total",
		Help: "Agent Instance tick 总数",
	},
)

// InstanceMessagesTotal 计入 metrics 的已处理消息数
var InstanceMessagesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "clawlink_instance_messages_total",
		Help: "Agent Instance 已处理消息总数",
	},
	[]string{"source"}, // tick | relay
)

// InstancesByState 各状态 Instance 数量
var InstancesByState = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "clawlink_instances",
		Help: "当前各生命周期状态的 Instance 数",
	},
	[]string{"state"},
)

// RateLimitWaitSeconds 限流等待时长
var RateLimitWaitSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "clawlink_rate_limit_wait_seconds",
		Help:    "限流等待耗时（秒）",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
	},
	[]string{"scope", "key"},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz handler 复用）
func WritePrometheus(w io.Writer) error {
	mfs, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
