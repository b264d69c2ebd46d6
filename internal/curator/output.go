package curator

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"taskforge/internal/logging"
	"taskforge/internal/types"
	"taskforge/internal/xmlpkg"
)

// phaseOutput serializes the package, compresses it above the configured
// threshold, and writes it under <out>/context-curator/.
func (p *Pipeline) phaseOutput(ctx context.Context, st *pipelineState) error {
	st.pkg.Metadata.ProcessingTimeMs = time.Since(st.startedAt).Milliseconds()

	var payload []byte
	ext := st.req.OutputFormat
	switch st.req.OutputFormat {
	case "json":
		data, err := json.MarshalIndent(st.pkg, "", "  ")
		if err != nil {
			return types.WrapError(types.ErrInternal, err, "package JSON encode")
		}
		payload = data
	default:
		payload = []byte(xmlpkg.Serialize(st.pkg))
	}

	dir := filepath.Join(p.out.Dir, "context-curator")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return types.WrapError(types.ErrInternal, err, "create output dir")
	}

	name := "context-package-" + st.jobID + "." + ext
	outputPath := filepath.Join(dir, name)

	if len(payload) > p.cfg.CompressionThresholdBytes {
		outputPath += ".gz"
		if err := writeGzip(outputPath, payload); err != nil {
			return err
		}
		logging.Curator("job %s compressed package (%d bytes raw)", st.jobID, len(payload))
	} else {
		if err := os.WriteFile(outputPath, payload, 0644); err != nil {
			return types.WrapError(types.ErrInternal, err, "write package")
		}
	}

	avg := 0.0
	scored := len(st.scored.High) + len(st.scored.Medium) + len(st.scored.Low)
	if scored > 0 {
		total := 0.0
		for _, sf := range st.scored.High {
			total += sf.Score.Overall
		}
		for _, sf := range st.scored.Medium {
			total += sf.Score.Overall
		}
		for _, sf := range st.scored.Low {
			total += sf.Score.Overall
		}
		avg = total / float64(scored)
	}

	hitRate := 0.0
	if st.cacheLookups > 0 {
		hitRate = float64(st.cacheHits) / float64(st.cacheLookups)
	}

	st.summary = &Summary{
		JobID:                 st.jobID,
		TotalFiles:            st.pkg.Metadata.TotalFiles,
		TotalTokens:           st.pkg.Metadata.TotalTokenEstimate,
		AverageRelevanceScore: avg,
		CacheHitRate:          hitRate,
		ProcessingTimeMs:      st.pkg.Metadata.ProcessingTimeMs,
		OutputPath:            outputPath,
	}
	return nil
}

func writeGzip(path string, payload []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return types.WrapError(types.ErrInternal, err, "create %s", path)
	}
	defer f.Close()

	zw := gzip.NewWriter(f)
	if _, err := zw.Write(payload); err != nil {
		zw.Close()
		return types.WrapError(types.ErrInternal, err, "compress package")
	}
	if err := zw.Close(); err != nil {
		return types.WrapError(types.ErrInternal, err, "finalize compressed package")
	}
	return f.Close()
}
