package codemap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubGenerator writes a map file and reports its path in a configured format.
type stubGenerator struct {
	reportFormat string
	content      string
	delay        time.Duration
	calls        atomic.Int32
	failWith     error
}

func (s *stubGenerator) Run(ctx context.Context, projectPath, outputDir string) (string, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if s.failWith != nil {
		return "", s.failWith
	}
	mapPath := filepath.Join(outputDir, "code-map.md")
	content := s.content
	if content == "" {
		content = "# Code Map for " + projectPath + "\n"
	}
	if err := os.WriteFile(mapPath, []byte(content), 0644); err != nil {
		return "", err
	}
	return fmt.Sprintf(s.reportFormat, mapPath), nil
}

func TestGenerateExtractsReportedPath(t *testing.T) {
	formats := []string{
		"done\nGenerated code map: %s\n",
		"**Output saved to:** %s\n",
		"Output file: %s\n",
	}
	for _, format := range formats {
		t.Run(format, func(t *testing.T) {
			out := t.TempDir()
			p := NewProvider(out, &stubGenerator{reportFormat: format})

			res, err := p.Generate(context.Background(), t.TempDir())
			require.NoError(t, err)
			assert.FileExists(t, res.FilePath)
			assert.NotEmpty(t, res.JobID)
		})
	}
}

func TestGenerateSerializedPerProject(t *testing.T) {
	out := t.TempDir()
	gen := &stubGenerator{reportFormat: "Generated code map: %s", delay: 50 * time.Millisecond}
	p := NewProvider(out, gen)
	project := t.TempDir()

	var wg sync.WaitGroup
	results := make([]*GenerateResult, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := p.Generate(context.Background(), project)
			require.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	// Concurrent callers share a single in-flight generation.
	assert.Equal(t, int32(1), gen.calls.Load())
	for _, r := range results[1:] {
		assert.Equal(t, results[0].JobID, r.JobID)
	}
}

func TestDetectExistingMatchesProjectMention(t *testing.T) {
	out := t.TempDir()
	project := t.TempDir()

	// A map for another project and one for ours.
	require.NoError(t, os.WriteFile(filepath.Join(out, "other.md"), []byte("# Code Map for /elsewhere\n"), 0644))
	ours := filepath.Join(out, "ours.md")
	require.NoError(t, os.WriteFile(ours, []byte("# Code Map\nProject: "+project+"\n"), 0644))

	p := NewProvider(out, nil)
	info, err := p.DetectExisting(project)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, ours, info.FilePath)

	// Paths never escape the output base.
	rel, err := filepath.Rel(out, info.FilePath)
	require.NoError(t, err)
	assert.False(t, filepath.IsAbs(rel))
	assert.False(t, strings.HasPrefix(rel, ".."))
}

func TestDetectExistingReturnsNilWhenAbsent(t *testing.T) {
	p := NewProvider(t.TempDir(), nil)
	info, err := p.DetectExisting(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestIsStale(t *testing.T) {
	out := t.TempDir()
	project := t.TempDir()
	p := NewProvider(out, nil)

	assert.True(t, p.IsStale(project, time.Hour), "no map means stale")

	mapFile := filepath.Join(out, "map.md")
	require.NoError(t, os.WriteFile(mapFile, []byte("# "+project+"\n"), 0644))
	assert.False(t, p.IsStale(project, time.Hour))
	assert.True(t, p.IsStale(project, time.Nanosecond))
}

func TestRefreshSkipsFreshMap(t *testing.T) {
	out := t.TempDir()
	gen := &stubGenerator{reportFormat: "Generated code map: %s"}
	p := NewProvider(out, gen)
	project := t.TempDir()

	_, err := p.Generate(context.Background(), project)
	require.NoError(t, err)
	require.Equal(t, int32(1), gen.calls.Load())

	_, err = p.Refresh(context.Background(), project, time.Hour, false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), gen.calls.Load(), "fresh map should not regenerate")

	_, err = p.Refresh(context.Background(), project, time.Hour, true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), gen.calls.Load(), "force should regenerate")
}

func TestSubscribeReceivesGenerationEvents(t *testing.T) {
	out := t.TempDir()
	p := NewProvider(out, &stubGenerator{reportFormat: "Generated code map: %s"})
	project := t.TempDir()

	events, cancel := p.Subscribe(project)
	defer cancel()

	_, err := p.Generate(context.Background(), project)
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, EventGenerated, ev.Type)
		assert.NotEmpty(t, ev.Data["filePath"])
	case <-time.After(time.Second):
		t.Fatal("expected a generated event")
	}
}

func TestUnsubscribeDuringEmit(t *testing.T) {
	out := t.TempDir()
	p := NewProvider(out, &stubGenerator{reportFormat: "Generated code map: %s"})
	project := t.TempDir()
	abs, err := filepath.Abs(project)
	require.NoError(t, err)

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					p.emit(abs, Event{Type: EventRefreshed, ProjectPath: abs, Timestamp: time.Now()})
				}
			}
		}()
	}

	for i := 0; i < 500; i++ {
		_, cancel := p.Subscribe(project)
		cancel()
	}
	close(done)
	wg.Wait()

	// A second cancel is a no-op, not a double close.
	_, cancel := p.Subscribe(project)
	cancel()
	cancel()
}

func TestGenerateErrorEmitsErrorEvent(t *testing.T) {
	out := t.TempDir()
	p := NewProvider(out, &stubGenerator{reportFormat: "%s", failWith: fmt.Errorf("tool crashed")})
	project := t.TempDir()

	events, cancel := p.Subscribe(project)
	defer cancel()

	_, err := p.Generate(context.Background(), project)
	require.Error(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, EventError, ev.Type)
		assert.Error(t, ev.Err)
	case <-time.After(time.Second):
		t.Fatal("expected an error event")
	}
}
