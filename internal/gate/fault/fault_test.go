package fault_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BrandonDHaskell/gatectl/internal/gate/fault"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, fault.KindTransient, fault.KindOf(fault.Transient("poll", io.ErrUnexpectedEOF)))
	assert.Equal(t, fault.KindDrop, fault.KindOf(fault.Drop("parse", errors.New("bad line"))))
	assert.Equal(t, fault.KindFatal, fault.KindOf(fault.Fatal("ping", errors.New("no answer"))))
	assert.Equal(t, fault.KindUnknown, fault.KindOf(errors.New("plain")))
	assert.Equal(t, fault.KindUnknown, fault.KindOf(nil))
}

func TestKindOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("modem worker: %w", fault.Transient("read", io.EOF))

	assert.True(t, fault.IsTransient(err))
	assert.False(t, fault.IsDrop(err))
	assert.ErrorIs(t, err, io.EOF)
}

func TestError_Message(t *testing.T) {
	err := fault.Fatal("power cycle", errors.New("still silent"))
	assert.Equal(t, "power cycle: still silent", err.Error())
	assert.Equal(t, "fatal", fault.KindFatal.String())
}

func TestIsDeliberate(t *testing.T) {
	assert.True(t, fault.IsDeliberate(fault.ErrStopped))
	assert.True(t, fault.IsDeliberate(fmt.Errorf("actuator: %w", fault.ErrStopped)))
	assert.True(t, fault.IsDeliberate(context.Canceled))
	assert.False(t, fault.IsDeliberate(fault.Fatal("ping", errors.New("no answer"))))
	assert.False(t, fault.IsDeliberate(nil))
}
