package auth

// Recorder は認証関連のメトリクス記録インターフェース。
// metrics.Collectorが実装する。
type Recorder interface {
	RecordAuthOutcome(outcome string)
	RecordLogin(result string)
	RecordRegistration(result string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuthOutcome(string)  {}
func (nopRecorder) RecordLogin(string)        {}
func (nopRecorder) RecordRegistration(string) {}
