package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/gatectl/internal/gate/service"
	"github.com/BrandonDHaskell/gatectl/internal/gate/types"
)

func TestLexicon_Parse(t *testing.T) {
	lex, err := service.NewLexicon(service.DefaultPhrases())
	require.NoError(t, err)

	cases := []struct {
		text string
		want service.Command
	}{
		{"open", service.Command{Action: types.ActionOpen}},
		{"  Let me in \n", service.Command{Action: types.ActionOpen}},
		{"reboot", service.Command{Action: types.ActionReboot}},
		{"lock", service.Command{Action: types.ActionLock}},
		{"unlock", service.Command{Action: types.ActionUnlock}},
		{"reset gate", service.Command{Action: types.ActionResetGate}},
		{"42", service.Command{Action: types.ActionOpen, Duration: 42 * time.Second}},
		{"0", service.Command{Action: types.ActionOpen}},
		{"301", service.Command{Action: types.ActionOpen, Duration: 300 * time.Second}},
		{"99999999999999999999999", service.Command{Action: types.ActionOpen, Duration: service.MaxOpenDuration}},
		{"-5", service.Command{Action: types.ActionNone}},
		{"OPEN", service.Command{Action: types.ActionNone}},
		{"opn", service.Command{Action: types.ActionNone}},
		{"", service.Command{Action: types.ActionNone}},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, lex.Parse(tc.text), "text %q", tc.text)
	}
}

func TestLexicon_LexiconBeatsNumber(t *testing.T) {
	lex, err := service.NewLexicon(map[string]string{"7": "lock"})
	require.NoError(t, err)

	assert.Equal(t, types.ActionLock, lex.Parse("7").Action)
}

func TestNewLexicon_UnknownTag(t *testing.T) {
	_, err := service.NewLexicon(map[string]string{"fly": "levitate"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "levitate")
}
