package fail2ban

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xoelrdgz/succeed2ban/internal/errors"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	out   string
	err   error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	return []byte(f.out), f.err
}

const sshdStatus = `Status for the jail: sshd
|- Filter
|  |- Currently failed:	2
|  |- Total failed:	40
|  ` + "`" + `- File list:	/var/log/auth.log
` + "`" + `- Actions
   |- Currently banned:	2
   |- Total banned:	9
   ` + "`" + `- Banned IP list:	203.0.113.7 198.51.100.10
`

func TestCheckBanned(t *testing.T) {
	tests := []struct {
		name string
		ip   string
		want bool
	}{
		{"listed", "203.0.113.7", true},
		{"second listed", "198.51.100.10", true},
		{"prefix of listed", "198.51.100.1", false},
		{"absent", "192.0.2.1", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := &fakeRunner{out: sshdStatus}
			c := NewClient(Config{}, r)
			got, err := c.CheckBanned(context.Background(), tc.ip)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, []string{"fail2ban-client status sshd"}, r.calls)
		})
	}
}

func TestCheckBannedProbeError(t *testing.T) {
	r := &fakeRunner{err: stderrors.New("exec: \"fail2ban-client\": executable file not found in $PATH")}
	c := NewClient(Config{}, r)

	banned, err := c.CheckBanned(context.Background(), "203.0.113.7")
	require.Error(t, err)
	assert.False(t, banned)
	assert.Equal(t, errors.KindProbe, errors.GetKind(err))
}

func TestBanAndUnbanCommands(t *testing.T) {
	r := &fakeRunner{out: "1"}
	c := NewClient(Config{Jail: "sshd-ddos"}, r)

	require.NoError(t, c.Ban(context.Background(), "203.0.113.7"))
	require.NoError(t, c.Unban(context.Background(), "203.0.113.7"))

	assert.Equal(t, []string{
		"fail2ban-client set sshd-ddos banip 203.0.113.7",
		"fail2ban-client set sshd-ddos unbanip 203.0.113.7",
	}, r.calls)
}

func TestBanFailures(t *testing.T) {
	tests := []struct {
		name string
		out  string
		err  error
	}{
		{"non-zero exit", "", stderrors.New("exit status 255")},
		{"error in output", "ERROR  NOK: ('sshd',)\nsshd", nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewClient(Config{}, &fakeRunner{out: tc.out, err: tc.err})
			err := c.Ban(context.Background(), "203.0.113.7")
			require.Error(t, err)
			assert.Equal(t, errors.KindOrchestration, errors.GetKind(err))

			err = c.Unban(context.Background(), "203.0.113.7")
			require.Error(t, err)
		})
	}
}

func TestErrorKeepsFirstOutputLine(t *testing.T) {
	c := NewClient(Config{}, &fakeRunner{out: "ERROR  NOK: ('sshd',)\nsshd"})
	err := c.Ban(context.Background(), "203.0.113.7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERROR  NOK")
	assert.NotContains(t, err.Error(), "\n")
}
