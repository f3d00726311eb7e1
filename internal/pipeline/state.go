package pipeline

// 管道状态机
// 正常循环 READY → ANALYZING → SIGNAL_GENERATED → TRADING → READY，
// 任何状态都可能进入 PAUSED（风控触发）或 ERROR（未捕获panic）。
// ERROR只能靠人工Resume恢复，PAUSED到期自动恢复。

type State string

const (
	StateInitializing    State = "INITIALIZING"
	StateReady           State = "READY"
	StateAnalyzing       State = "ANALYZING"
	StateSignalGenerated State = "SIGNAL_GENERATED"
	StateTrading         State = "TRADING"
	StatePaused          State = "PAUSED"
	StateError           State = "ERROR"
)

// 合法迁移表 不在表里的迁移是编程错误
var transitions = map[State][]State{
	StateInitializing:    {StateReady, StateError},
	StateReady:           {StateAnalyzing, StatePaused, StateError},
	StateAnalyzing:       {StateSignalGenerated, StateReady, StatePaused, StateError},
	StateSignalGenerated: {StateTrading, StateReady, StatePaused, StateError},
	StateTrading:         {StateReady, StatePaused, StateError},
	StatePaused:          {StateReady, StateError},
	StateError:           {StateReady},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
