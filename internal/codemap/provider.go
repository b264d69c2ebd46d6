// Package codemap provides on-demand markdown code maps for project paths,
// plus deterministic parsed views of their content. Generation shells out to
// an external generator; results are cached in memory keyed by absolute
// project path.
package codemap

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"taskforge/internal/logging"
	"taskforge/internal/types"
)

// EventType classifies provider events.
type EventType string

const (
	EventGenerated EventType = "generated"
	EventRefreshed EventType = "refreshed"
	EventValidated EventType = "validated"
	EventError     EventType = "error"
)

// Event is delivered to subscribers of a project path.
type Event struct {
	Type        EventType
	ProjectPath string
	Timestamp   time.Time
	Data        map[string]interface{}
	Err         error
}

// GenerateResult reports a completed generation.
type GenerateResult struct {
	FilePath       string
	GenerationTime time.Duration
	JobID          string
}

// Generator runs the external code-map tool and returns its combined output.
type Generator interface {
	Run(ctx context.Context, projectPath, outputDir string) (string, error)
}

// CommandGenerator invokes a configured command line. The project path and
// output directory are appended as the final two arguments.
type CommandGenerator struct {
	Command []string
}

// Run implements Generator.
func (g *CommandGenerator) Run(ctx context.Context, projectPath, outputDir string) (string, error) {
	if len(g.Command) == 0 {
		return "", fmt.Errorf("code-map generator command not configured")
	}
	args := append(append([]string{}, g.Command[1:]...), projectPath, outputDir)
	cmd := exec.CommandContext(ctx, g.Command[0], args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("generator failed: %w", err)
	}
	return string(out), nil
}

// outputPathPatterns extract the generated file path from generator output.
// The generator's report format has drifted across versions, so several forms
// are accepted.
var outputPathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Generated code map:\s*(.+)`),
	regexp.MustCompile(`\*\*Output saved to:\*\*\s*(.+)`),
	regexp.MustCompile(`Output file:\s*(.+)`),
	regexp.MustCompile(`Saved to:\s*(.+)`),
}

type inflight struct {
	done   chan struct{}
	result *GenerateResult
	err    error
}

// Provider serves code maps for project paths. Generation is serialized per
// project; concurrent callers share the in-flight result.
type Provider struct {
	outputDir string
	gen       Generator

	mu       sync.RWMutex
	cache    map[string]*types.CodeMapInfo
	inFlight map[string]*inflight

	subMu       sync.Mutex
	subscribers map[string][]chan Event

	watcher *fsnotify.Watcher
}

// NewProvider creates a provider writing maps under outputDir.
func NewProvider(outputDir string, gen Generator) *Provider {
	return &Provider{
		outputDir:   outputDir,
		gen:         gen,
		cache:       make(map[string]*types.CodeMapInfo),
		inFlight:    make(map[string]*inflight),
		subscribers: make(map[string][]chan Event),
	}
}

// DetectExisting scans the output directory for the most recent .md file whose
// first 20 lines mention the project's absolute path or basename. Returns nil
// when no matching map exists.
func (p *Provider) DetectExisting(projectPath string) (*types.CodeMapInfo, error) {
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return nil, types.WrapError(types.ErrInvalidInput, err, "invalid project path %q", projectPath)
	}
	base := filepath.Base(abs)

	entries, err := os.ReadDir(p.outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, types.WrapError(types.ErrInternal, err, "cannot read output directory %q", p.outputDir)
	}

	type candidate struct {
		path    string
		modTime time.Time
		size    int64
	}
	var candidates []candidate
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{
			path:    filepath.Join(p.outputDir, e.Name()),
			modTime: info.ModTime(),
			size:    info.Size(),
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime.After(candidates[j].modTime)
	})

	for _, c := range candidates {
		if mentionsProject(c.path, abs, base) {
			info := &types.CodeMapInfo{
				FilePath:    c.path,
				GeneratedAt: c.modTime,
				ProjectPath: abs,
				FileSize:    c.size,
			}
			p.mu.Lock()
			p.cache[abs] = info
			p.mu.Unlock()
			return info, nil
		}
	}
	return nil, nil
}

// mentionsProject reads the first 20 lines of path looking for absPath or its
// basename.
func mentionsProject(path, absPath, base string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for i := 0; i < 20 && scanner.Scan(); i++ {
		line := scanner.Text()
		if strings.Contains(line, absPath) || strings.Contains(line, base) {
			return true
		}
	}
	return false
}

// IsStale reports whether the project's map is missing or older than maxAge.
func (p *Provider) IsStale(projectPath string, maxAge time.Duration) bool {
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return true
	}

	p.mu.RLock()
	info := p.cache[abs]
	p.mu.RUnlock()

	if info == nil {
		detected, err := p.DetectExisting(abs)
		if err != nil || detected == nil {
			return true
		}
		info = detected
	}
	return info.IsStale(time.Now(), maxAge)
}

// Generate invokes the external generator for projectPath. Concurrent calls
// for the same project share one generation.
func (p *Provider) Generate(ctx context.Context, projectPath string) (*GenerateResult, error) {
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return nil, types.WrapError(types.ErrInvalidInput, err, "invalid project path %q", projectPath)
	}

	p.mu.Lock()
	if fl, ok := p.inFlight[abs]; ok {
		p.mu.Unlock()
		select {
		case <-fl.done:
			return fl.result, fl.err
		case <-ctx.Done():
			return nil, types.WrapError(types.ErrCancelled, ctx.Err(), "generation wait cancelled for %q", abs)
		}
	}
	fl := &inflight{done: make(chan struct{})}
	p.inFlight[abs] = fl
	p.mu.Unlock()

	fl.result, fl.err = p.generate(ctx, abs)
	close(fl.done)

	p.mu.Lock()
	delete(p.inFlight, abs)
	p.mu.Unlock()

	return fl.result, fl.err
}

func (p *Provider) generate(ctx context.Context, abs string) (*GenerateResult, error) {
	jobID := uuid.NewString()
	start := time.Now()
	logging.CodeMap("generating code map for %s (job %s)", abs, jobID)

	if err := os.MkdirAll(p.outputDir, 0755); err != nil {
		return nil, types.WrapError(types.ErrInternal, err, "cannot create output directory")
	}

	out, err := p.gen.Run(ctx, abs, p.outputDir)
	if err != nil {
		if ctx.Err() != nil {
			err = types.WrapError(types.ErrCancelled, ctx.Err(), "generation cancelled for %q", abs)
		} else {
			err = types.WrapError(types.ErrProviderUnavailable, err, "code-map generation failed for %q", abs)
		}
		p.emit(abs, Event{Type: EventError, ProjectPath: abs, Timestamp: time.Now(), Err: err})
		return nil, err
	}

	mapPath := extractOutputPath(out)
	if mapPath == "" {
		err := types.NewError(types.ErrInvalidModelOutput, "generator output did not report a file path")
		p.emit(abs, Event{Type: EventError, ProjectPath: abs, Timestamp: time.Now(), Err: err})
		return nil, err
	}

	stat, err := os.Stat(mapPath)
	if err != nil {
		err = types.WrapError(types.ErrResourceNotFound, err, "reported code map %q missing", mapPath)
		p.emit(abs, Event{Type: EventError, ProjectPath: abs, Timestamp: time.Now(), Err: err})
		return nil, err
	}

	info := &types.CodeMapInfo{
		FilePath:    mapPath,
		GeneratedAt: time.Now(),
		ProjectPath: abs,
		FileSize:    stat.Size(),
	}
	p.mu.Lock()
	p.cache[abs] = info
	p.mu.Unlock()

	result := &GenerateResult{
		FilePath:       mapPath,
		GenerationTime: time.Since(start),
		JobID:          jobID,
	}
	logging.CodeMap("code map ready: %s (%v)", mapPath, result.GenerationTime)
	p.emit(abs, Event{
		Type:        EventGenerated,
		ProjectPath: abs,
		Timestamp:   time.Now(),
		Data:        map[string]interface{}{"filePath": mapPath, "jobId": jobID},
	})
	return result, nil
}

// extractOutputPath finds the generated file path in generator output.
func extractOutputPath(out string) string {
	for _, re := range outputPathPatterns {
		if m := re.FindStringSubmatch(out); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// Refresh regenerates when the map is stale or force is set; otherwise it is
// a no-op returning the cached info.
func (p *Provider) Refresh(ctx context.Context, projectPath string, maxAge time.Duration, force bool) (*types.CodeMapInfo, error) {
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return nil, types.WrapError(types.ErrInvalidInput, err, "invalid project path %q", projectPath)
	}

	if !force && !p.IsStale(abs, maxAge) {
		p.mu.RLock()
		info := p.cache[abs]
		p.mu.RUnlock()
		logging.CodeMapDebug("refresh skipped, map for %s is fresh", abs)
		return info, nil
	}

	if _, err := p.Generate(ctx, abs); err != nil {
		return nil, err
	}

	p.mu.RLock()
	info := p.cache[abs]
	p.mu.RUnlock()
	p.emit(abs, Event{Type: EventRefreshed, ProjectPath: abs, Timestamp: time.Now()})
	return info, nil
}

// Cached returns the in-memory cache entry for a project, if any.
func (p *Provider) Cached(projectPath string) *types.CodeMapInfo {
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cache[abs]
}

// Subscribe returns a channel of events for a project path. Slow consumers
// drop events rather than block generation.
func (p *Provider) Subscribe(projectPath string) (<-chan Event, func()) {
	abs, _ := filepath.Abs(projectPath)
	ch := make(chan Event, 16)

	p.subMu.Lock()
	p.subscribers[abs] = append(p.subscribers[abs], ch)
	p.subMu.Unlock()

	cancel := func() {
		p.subMu.Lock()
		defer p.subMu.Unlock()
		subs := p.subscribers[abs]
		for i, c := range subs {
			if c == ch {
				p.subscribers[abs] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
	return ch, cancel
}

// emit delivers under subMu so a concurrent cancel cannot close a channel
// between the subscriber snapshot and the send. Sends never block.
func (p *Provider) emit(projectPath string, ev Event) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	for _, ch := range p.subscribers[projectPath] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Watch starts a filesystem watcher on the output directory and emits a
// validated event whenever a cached project's map file is rewritten outside
// this process. It runs until ctx is cancelled.
func (p *Provider) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return types.WrapError(types.ErrInternal, err, "cannot create watcher")
	}
	if err := os.MkdirAll(p.outputDir, 0755); err != nil {
		watcher.Close()
		return types.WrapError(types.ErrInternal, err, "cannot create output directory")
	}
	if err := watcher.Add(p.outputDir); err != nil {
		watcher.Close()
		return types.WrapError(types.ErrInternal, err, "cannot watch %q", p.outputDir)
	}
	p.watcher = watcher

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				p.handleFileChange(ev.Name)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.CodeMapDebug("watcher error: %v", err)
			}
		}
	}()
	return nil
}

func (p *Provider) handleFileChange(path string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for project, info := range p.cache {
		if info.FilePath == path {
			p.emit(project, Event{
				Type:        EventValidated,
				ProjectPath: project,
				Timestamp:   time.Now(),
				Data:        map[string]interface{}{"filePath": path},
			})
			return
		}
	}
}
