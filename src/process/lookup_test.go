package process

import (
	"context"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityMatches(t *testing.T) {
	tests := []struct {
		name string
		id   Identity
		want bool
	}{
		{"binary name", Identity{Name: "ocr_service", Args: []string{"./ocr_service"}}, true},
		{"python script", Identity{Name: "python3", Args: []string{"/usr/bin/python3", "-u", "/opt/ocr_service.py"}}, true},
		{"versioned interpreter", Identity{Name: "python3.12", Args: []string{"python3.12", "ocr_service.py", "--dir", "/tmp"}}, true},
		{"editor with file open", Identity{Name: "vim", Args: []string{"vim", "ocr_service.py"}}, false},
		{"grep for it", Identity{Name: "grep", Args: []string{"grep", "-r", "ocr_service", "."}}, false},
		{"interpreter on other script", Identity{Name: "python3", Args: []string{"python3", "server.py", "ocr_service"}}, false},
		{"name only", Identity{Name: "ocr_service"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.id.Matches("ocr_service"))
		})
	}
	assert.False(t, Identity{Name: "anything"}.Matches(" "))
}

func TestIdentityRuns(t *testing.T) {
	watch := Identity{Args: []string{"/usr/local/bin/screen-ocr-clip", "--log-level", "debug", "watch"}}
	assert.True(t, watch.Runs("/opt/other/screen-ocr-clip", "watch"))
	assert.False(t, watch.Runs("ocr-tool", "watch"))

	capture := Identity{Args: []string{"screen-ocr-clip", "capture"}}
	assert.False(t, capture.Runs("screen-ocr-clip", "watch"))
	assert.False(t, Identity{}.Runs("screen-ocr-clip", "watch"))
}

func TestDescribeChild(t *testing.T) {
	requireShell(t)
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}
	cmd := exec.Command(sleep, "30")
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})

	id, ok := Describe(context.Background(), cmd.Process.Pid)
	require.True(t, ok)
	assert.Equal(t, "sleep", id.Program())
	assert.False(t, id.Matches("ocr_service"))

	_, ok = Describe(context.Background(), -1)
	assert.False(t, ok)
	assert.True(t, Alive(os.Getpid()))
}
