package parent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/harvx/reddit-etl/internal/ioutil"
	"github.com/harvx/reddit-etl/internal/model"
	"github.com/harvx/reddit-etl/internal/sink"
)

// AttachOptions configures pass 3.
type AttachOptions struct {
	// InputDir holds the spooled comments/ and submissions/ JSONL parts to
	// join (typically a sink.Spool's output directory).
	InputDir string
	// OutputDir receives the joined output, mirroring InputDir's partitioning
	// under a new base directory.
	OutputDir string
	// Store serves parent lookups; built by Resolve.
	Store Store
	// Concurrency bounds how many input parts are joined at once.
	Concurrency int
	// Resume skips output parts whose manifest entry matches the file
	// already on disk.
	Resume bool
	Retry  ioutil.RetryOptions
}

func (o AttachOptions) normalized() AttachOptions {
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	return o
}

// AttachResult summarizes one Attach run.
type AttachResult struct {
	RecordsIn, RecordsAttached int64
	Parts                      []string
}

var inputPartPattern = regexp.MustCompile(`^(RC|RS)_(\d{4}-\d{2})\.jsonl$`)

// Attach performs pass 3: reads every JSONL part under InputDir's comments/
// and submissions/ subdirectories, attaches a "parent" sub-object wherever
// the record's parent_id resolves in Store, and writes one output part per
// input part under OutputDir (spec §4.9 pass 3, left-outer join semantics).
func Attach(ctx context.Context, opts AttachOptions) (*AttachResult, error) {
	opts = opts.normalized()

	parts, err := discoverInputParts(opts.InputDir)
	if err != nil {
		return nil, fmt.Errorf("parent: attach discovery: %w", err)
	}

	manifest, err := sink.LoadManifest(filepath.Join(opts.OutputDir, "manifest.tsv"))
	if err != nil {
		return nil, err
	}

	var recordsIn, recordsAttached int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	done := make([]string, len(parts))
	for i, part := range parts {
		i, part := i, part
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			outPath := filepath.Join(opts.OutputDir, part.subdir, part.name)
			if opts.Resume {
				if entry, ok := manifest.Entries[outPath]; ok && entry.MatchesOnDisk() {
					done[i] = outPath
					return nil
				}
			}

			kind := model.KindComment
			if part.subdir == "submissions" {
				kind = model.KindSubmission
			}
			in, attached, err := attachOne(gctx, part.path, outPath, kind, opts.Store, opts.Retry)
			if err != nil {
				return fmt.Errorf("parent: attach %s: %w", part.path, err)
			}
			atomic.AddInt64(&recordsIn, in)
			atomic.AddInt64(&recordsAttached, attached)
			done[i] = outPath
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, outPath := range done {
		if outPath == "" {
			continue
		}
		info, err := os.Stat(outPath)
		if err != nil {
			return nil, fmt.Errorf("parent: stat output %s: %w", outPath, err)
		}
		manifest.Entries[outPath] = sink.ManifestEntry{
			Path:    outPath,
			Size:    info.Size(),
			ModTime: info.ModTime().UTC(),
		}
	}
	if err := manifest.Save(filepath.Join(opts.OutputDir, "manifest.tsv"), opts.Retry); err != nil {
		return nil, err
	}

	return &AttachResult{RecordsIn: recordsIn, RecordsAttached: recordsAttached, Parts: done}, nil
}

type inputPart struct {
	path, subdir, name string
}

func discoverInputParts(inputDir string) ([]inputPart, error) {
	var parts []inputPart
	for _, subdir := range []string{"comments", "submissions"} {
		dir := filepath.Join(inputDir, subdir)
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || !inputPartPattern.MatchString(e.Name()) {
				continue
			}
			parts = append(parts, inputPart{path: filepath.Join(dir, e.Name()), subdir: subdir, name: e.Name()})
		}
	}
	return parts, nil
}

// attachOne joins a single input part against store, writing the result
// atomically to outPath. Every input record is emitted exactly once, in
// input order (spec testable property 8).
func attachOne(ctx context.Context, inPath, outPath string, kind model.Kind, store Store, retry ioutil.RetryOptions) (recordsIn, recordsAttached int64, err error) {
	f, err := ioutil.OpenForRead(ctx, inPath, retry)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	w, err := ioutil.CreateAtomic(outPath, retry)
	if err != nil {
		return 0, 0, err
	}
	buf := bufio.NewWriterSize(w, 256*1024)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var rec model.Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			w.Abort()
			return 0, 0, fmt.Errorf("decode %s: %w", inPath, err)
		}
		recordsIn++

		out := attachParent(rec, kind, store)
		if out != nil {
			recordsAttached++
			rec = out
		}

		line, err := json.Marshal(rec)
		if err != nil {
			w.Abort()
			return 0, 0, err
		}
		if _, err := buf.Write(append(line, '\n')); err != nil {
			w.Abort()
			return 0, 0, err
		}
	}
	if err := scanner.Err(); err != nil {
		w.Abort()
		return 0, 0, fmt.Errorf("read %s: %w", inPath, err)
	}

	if err := buf.Flush(); err != nil {
		w.Abort()
		return 0, 0, err
	}
	if err := w.Close(); err != nil {
		return 0, 0, err
	}
	return recordsIn, recordsAttached, nil
}

// attachParent looks up rec's parent fullname in store and returns a clone
// with a "parent" key attached, or nil if there's no resolvable,
// non-self-referential parent (left-outer join, spec §4.9). kind is rec's
// own kind (comment or submission), known from the input part it was read
// from, not guessed from the parent fullname.
func attachParent(rec model.Record, kind model.Kind, store Store) model.Record {
	parent, ok := rec.ParentFullname()
	if !ok {
		return nil
	}
	if own, ok := rec.OwnFullname(kind); ok && own == parent {
		return nil
	}
	payload, ok := store.Get(parent.String())
	if !ok {
		return nil
	}

	out := rec.Clone()
	out["parent"] = map[string]any(payload)
	return out
}
