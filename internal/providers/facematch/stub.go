package facematch

import "context"

// Stub returns fixed scores. It stands in for the vision service in local
// development, where every verification should sail through the sandbox
// thresholds.
type Stub struct {
	CompareScore  float64
	LivenessScore float64
}

func NewStub() *Stub {
	return &Stub{CompareScore: 0.9, LivenessScore: 0.9}
}

func (s *Stub) Compare(_ context.Context, _, _ []byte) (float64, error) {
	return s.CompareScore, nil
}

func (s *Stub) Liveness(_ context.Context, _ []byte, _ string) (float64, error) {
	return s.LivenessScore, nil
}
