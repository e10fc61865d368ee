package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranscriptMonotonicSeq(t *testing.T) {
	tr := NewTranscript()
	a := tr.Append("Tú", "hola")
	b := tr.Append("Ana", "buenas")
	assert.Less(t, a.Seq, b.Seq)
	assert.Equal(t, 2, tr.Len())
}

func TestTranscriptSeqSurvivesClear(t *testing.T) {
	tr := NewTranscript()
	a := tr.Append("Tú", "hola")
	tr.Clear()
	assert.Equal(t, 0, tr.Len())
	b := tr.Append("Tú", "otra vez")
	assert.Greater(t, b.Seq, a.Seq)
}
