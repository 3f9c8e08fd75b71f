package input

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
	"github.com/xoelrdgz/succeed2ban/internal/errors"
)

func collect(t *testing.T, lines <-chan string, n int) []string {
	t.Helper()
	var got []string
	timeout := time.After(5 * time.Second)
	for len(got) < n {
		select {
		case l, ok := <-lines:
			if !ok {
				return got
			}
			got = append(got, l)
		case <-timeout:
			t.Fatalf("timed out after %d of %d lines", len(got), n)
		}
	}
	return got
}

func TestFileTailerReadsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fail2ban.log")
	content := "2024-03-01 00:00:01,123 fail2ban.filter [99]: INFO [sshd] Found 203.0.113.7\n\n" +
		"2024-03-01 00:00:02,123 fail2ban.actions [99]: NOTICE [sshd] Ban 203.0.113.7\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	tailer := NewFileTailer(path, 10)
	tailer.SetFromBeginning(true)
	tailer.SetPoll(true)
	assert.Equal(t, domain.OriginFail2ban, tailer.Origin())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lines, _ := tailer.Start(ctx)

	got := collect(t, lines, 2)
	assert.Equal(t, []string{
		"2024-03-01 00:00:01,123 fail2ban.filter [99]: INFO [sshd] Found 203.0.113.7",
		"2024-03-01 00:00:02,123 fail2ban.actions [99]: NOTICE [sshd] Ban 203.0.113.7",
	}, got)
	assert.True(t, tailer.IsRunning())

	require.NoError(t, tailer.Stop())
	assert.False(t, tailer.IsRunning())
}

func TestFileTailerTruncatesLongLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fail2ban.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("a", domain.MaxLineLength+100)+"\n"), 0o644))

	tailer := NewFileTailer(path, 10)
	tailer.SetFromBeginning(true)
	tailer.SetPoll(true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lines, _ := tailer.Start(ctx)

	got := collect(t, lines, 1)
	require.Len(t, got, 1)
	assert.Len(t, got[0], domain.MaxLineLength)
	tailer.Stop()
}

func TestFileTailerMissingFile(t *testing.T) {
	tailer := NewFileTailer(filepath.Join(t.TempDir(), "absent.log"), 10)
	lines, errs := tailer.Start(context.Background())

	select {
	case err := <-errs:
		require.Error(t, err)
		assert.Equal(t, errors.KindWatcher, errors.GetKind(err))
	case <-time.After(5 * time.Second):
		t.Fatal("expected an error for a missing file")
	}
	_, ok := <-lines
	assert.False(t, ok)
}

func TestJournalFollowerStreamsStdout(t *testing.T) {
	f := NewCommandFollower("sh", []string{"-c", "printf 'sshd: Failed password from 203.0.113.7\\n\\nsshd: Accepted key\\n'"}, 10)
	assert.Equal(t, domain.OriginJournal, f.Origin())

	lines, errs := f.Start(context.Background())
	got := collect(t, lines, 2)
	assert.Equal(t, []string{"sshd: Failed password from 203.0.113.7", "sshd: Accepted key"}, got)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.False(t, f.IsRunning())
}

func TestJournalFollowerMissingCommand(t *testing.T) {
	f := NewCommandFollower("succeed2ban-no-such-binary", nil, 10)
	_, errs := f.Start(context.Background())

	err := <-errs
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindWatcher))
}

func TestJournalFollowerNonZeroExit(t *testing.T) {
	f := NewCommandFollower("sh", []string{"-c", "exit 3"}, 10)
	_, errs := f.Start(context.Background())

	err := <-errs
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited")
}

func TestJournalFollowerStop(t *testing.T) {
	f := NewCommandFollower("sh", []string{"-c", "echo ready; exec sleep 30"}, 10)
	lines, errs := f.Start(context.Background())

	assert.Equal(t, []string{"ready"}, collect(t, lines, 1))
	require.NoError(t, f.Stop())

	select {
	case err, ok := <-errs:
		if ok {
			assert.NoError(t, err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("follower did not stop")
	}
}

func TestJournalFollowerOversizedLineEndsCommand(t *testing.T) {
	// 2 MB without a newline overflows the scanner while the command keeps running.
	f := NewCommandFollower("sh", []string{"-c", "head -c 2000000 /dev/zero | tr '\\000' a; exec sleep 30"}, 10)
	lines, errs := f.Start(context.Background())

	select {
	case err := <-errs:
		require.Error(t, err)
		assert.True(t, errors.IsKind(err, errors.KindWatcher))
		assert.Contains(t, err.Error(), "read sh")
	case <-time.After(5 * time.Second):
		t.Fatal("follower hung after a scan error")
	}

	for range lines {
	}
	assert.Eventually(t, func() bool { return !f.IsRunning() }, time.Second, 10*time.Millisecond)
}

func TestNewJournalFollowerArgs(t *testing.T) {
	f := NewJournalFollower(nil, 0)
	assert.Equal(t, "journalctl", f.command)
	assert.Equal(t, []string{"-f", "-n", "0", "-u", "ssh", "-u", "sshd"}, f.args)
}
