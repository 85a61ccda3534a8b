package worker

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunVisitsEveryIndex(t *testing.T) {
	p := NewPool(4)
	defer p.Close()

	out := make([]int, 100)
	errs := p.Run(len(out), func(i int) error {
		out[i] = i * i
		return nil
	})
	require.Len(t, errs, 100)
	for i := range out {
		assert.Equal(t, i*i, out[i])
		assert.NoError(t, errs[i])
	}
}

func TestPool_ErrorsStayWithTheirIndex(t *testing.T) {
	p := NewPool(2)
	defer p.Close()

	bad := errors.New("bad")
	errs := p.Run(5, func(i int) error {
		if i == 3 {
			return bad
		}
		return nil
	})
	for i, err := range errs {
		if i == 3 {
			assert.ErrorIs(t, err, bad)
		} else {
			assert.NoError(t, err)
		}
	}
}

func TestPool_RecoversPanics(t *testing.T) {
	p := NewPool(2)
	defer p.Close()

	var ran atomic.Int32
	errs := p.Run(4, func(i int) error {
		ran.Add(1)
		if i == 1 {
			panic("boom")
		}
		return nil
	})
	assert.Equal(t, int32(4), ran.Load())
	assert.ErrorIs(t, errs[1], ErrPanic)
	assert.Contains(t, errs[1].Error(), "boom")

	// workers survive the panic
	errs = p.Run(3, func(int) error { return nil })
	assert.Equal(t, []error{nil, nil, nil}, errs)
}

func TestPool_DefaultSize(t *testing.T) {
	p := NewPool(0)
	defer p.Close()
	assert.Positive(t, p.Size())
}
