package apperrors

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	t.Run("chaining", func(t *testing.T) {
		ErrBaseErr := New("base error")
		assert.Equal(t, "base error", ErrBaseErr.Error())
		assert.Equal(t, "msg", ErrBaseErr.New("msg").Error())
		assert.ErrorIs(t, ErrBaseErr, ErrBaseErr)

		ErrFirstLevel := ErrBaseErr.New("first level")
		assert.Equal(t, "first level", ErrFirstLevel.Error())
		assert.ErrorIs(t, ErrFirstLevel, ErrBaseErr)

		ErrAnotherErr := New("another error")
		ErrAnotherErrMsg := ErrAnotherErr.Msg("another error msg")
		ErrYetAnotherErr := New("yet another error")
		ErrYetAnotherErrMsg := ErrYetAnotherErr.Msg("yet another error msg")
		ErrWrappedErr := ErrFirstLevel.Err(ErrAnotherErrMsg, ErrYetAnotherErrMsg)
		assert.Equal(t, "first level", ErrWrappedErr.Error())
		assert.ErrorIs(t, ErrWrappedErr, ErrBaseErr)
		assert.ErrorIs(t, ErrWrappedErr, ErrFirstLevel)
		assert.ErrorIs(t, ErrWrappedErr, ErrAnotherErr)
		assert.ErrorIs(t, ErrWrappedErr, ErrAnotherErrMsg)
		assert.ErrorIs(t, ErrWrappedErr, ErrYetAnotherErr)
		assert.ErrorIs(t, ErrWrappedErr, ErrYetAnotherErrMsg)

		err := errors.New("error")
		ErrWrappedErr = ErrFirstLevel.Err(err)
		assert.Equal(t, "first level", ErrWrappedErr.Error())
		assert.ErrorIs(t, ErrWrappedErr, ErrBaseErr)
		assert.ErrorIs(t, ErrWrappedErr, err)

		ErrWrappedErr = ErrFirstLevel.MsgErr("msg", err)
		assert.Equal(t, "msg", ErrWrappedErr.Error())
		assert.ErrorIs(t, ErrWrappedErr, ErrBaseErr)
		assert.ErrorIs(t, ErrWrappedErr, err)

		ErrAnotherGoErr := fmt.Errorf("another error")
		ErrYetAnotherGoErr := fmt.Errorf("yet another error")
		ErrWrappedGoErr := ErrFirstLevel.Err(ErrAnotherGoErr, ErrYetAnotherGoErr)
		assert.Equal(t, "first level", ErrWrappedGoErr.Error())
		assert.ErrorIs(t, ErrWrappedGoErr, ErrAnotherGoErr)
		assert.ErrorIs(t, ErrWrappedGoErr, ErrYetAnotherGoErr)
	})

	t.Run("exit codes", func(t *testing.T) {
		ErrBase := New("base")
		assert.Equal(t, ExitFailure, ErrBase.ExitCode())

		ErrConflict := ErrBase.New("conflict").SetExitCode(ExitConflict)
		assert.Equal(t, ExitConflict, ErrConflict.ExitCode())
		assert.Equal(t, ExitConflict, ErrConflict.Msg("tenant exists").ExitCode())
		assert.Equal(t, ExitConflict, ExitCode(ErrConflict.Err(fmt.Errorf("boom"))))

		assert.Equal(t, ExitOK, ExitCode(nil))
		assert.Equal(t, ExitFailure, ExitCode(fmt.Errorf("plain")))
		assert.Equal(t, ExitConflict, ExitCode(fmt.Errorf("wrapped: %w", ErrConflict)))
	})

	t.Run("prefix, suffix and expansion", func(t *testing.T) {
		ErrBase := New("migration failed")
		cause := fmt.Errorf("syntax error")
		err := ErrBase.MsgErr("apply 0002_users", cause).Prefix("1_example").SetExpandError(true)
		assert.Equal(t, "1_example: apply 0002_users", err.Error())
		assert.Equal(t, "1_example: apply 0002_users; syntax error", err.ErrorAll())
		assert.Equal(t, "apply 0002_users", ErrBase.MsgErr("apply 0002_users").Error())
		assert.Equal(t, "base: x", New("base").Suffix("x").Error())
		assert.Contains(t, Describe(ErrBase.MsgErr("apply", cause)), "syntax error")
		assert.Equal(t, "plain", Describe(fmt.Errorf("plain")))
	})
}
