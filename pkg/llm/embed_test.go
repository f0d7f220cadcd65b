package llm

import (
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	Normalize(v)

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("expected unit norm, got %f", sum)
	}
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("unexpected normalized vector: %v", v)
	}
}

func TestNormalize_ZeroVector(t *testing.T) {
	v := []float32{0, 0, 0}
	Normalize(v)
	for _, x := range v {
		if x != 0 {
			t.Errorf("zero vector should stay zero, got %v", v)
		}
	}
}

func TestNewEmbedder_RequiresKey(t *testing.T) {
	if _, err := NewEmbedder("", "", "text-embedding-3-small", 384); err == nil {
		t.Error("expected error for missing api key")
	}
}

func TestNewChatClient_RequiresKey(t *testing.T) {
	if _, err := NewChatClient("", "", "llama-3.1-8b-instant"); err == nil {
		t.Error("expected error for missing api key")
	}
}
