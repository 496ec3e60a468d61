package main

import (
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"memchat/internal/service"

	"github.com/spf13/cobra"
)

const defaultCacheFile = ".memctl_cache.json"

// importedFile records a file that was imported successfully.
type importedFile struct {
	FilePath   string    `json:"file_path"`
	FileHash   string    `json:"file_hash"`
	ImportedAt time.Time `json:"imported_at"`
}

// importCache remembers imported files so re-running an import over the
// same directory only applies what changed.
type importCache struct {
	ImportedFiles map[string]importedFile `json:"imported_files"`
}

func loadCache(cacheFile string) (*importCache, error) {
	cache := &importCache{ImportedFiles: make(map[string]importedFile)}

	data, err := os.ReadFile(cacheFile)
	if errors.Is(err, os.ErrNotExist) {
		return cache, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}
	if len(data) == 0 {
		return cache, nil
	}

	if err := json.Unmarshal(data, cache); err != nil {
		return nil, fmt.Errorf("failed to parse cache file: %w", err)
	}
	if cache.ImportedFiles == nil {
		cache.ImportedFiles = make(map[string]importedFile)
	}
	return cache, nil
}

func saveCache(cacheFile string, cache *importCache) error {
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}
	if err := os.WriteFile(cacheFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	return nil
}

func fileHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("failed to calculate hash: %w", err)
	}
	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}

// importSources expands path into the JSON files to import, sorted.
func importSources(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	files, err := filepath.Glob(filepath.Join(path, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func newImportCmd(open memoryOpener) *cobra.Command {
	var (
		cacheFile string
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "import <file|dir>",
		Short: "Validate and merge store exports into the knowledge store",
		Long: `Imports one export file, or every *.json file in a directory. Domains in an
import replace the same domains in the store. Files whose content has not
changed since their last successful import are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := importSources(args[0])
			if err != nil {
				return err
			}

			cache, err := loadCache(cacheFile)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v, importing everything\n", err)
				cache = &importCache{ImportedFiles: make(map[string]importedFile)}
			}

			return withMemory(cmd, open, func(memory *service.MemoryService) error {
				failed := 0
				for _, file := range files {
					if err := importFile(cmd, memory, cache, file, force); err != nil {
						fmt.Fprintln(cmd.ErrOrStderr(), err)
						failed++
					}
				}

				if err := saveCache(cacheFile, cache); err != nil {
					return err
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d files failed to import", failed, len(files))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&cacheFile, "cache", defaultCacheFile, "file that remembers already imported files")
	cmd.Flags().BoolVar(&force, "force", false, "import files even if they are unchanged")
	return cmd
}

func importFile(cmd *cobra.Command, memory *service.MemoryService, cache *importCache, file string, force bool) error {
	out := cmd.OutOrStdout()

	hash, err := fileHash(file)
	if err != nil {
		return err
	}
	if cached, ok := cache.ImportedFiles[file]; ok && cached.FileHash == hash && !force {
		fmt.Fprintf(out, "%s: unchanged since %s, skipped\n", file, cached.ImportedAt.Format(time.RFC3339))
		return nil
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", file, err)
	}

	domains, documents, err := memory.Import(cmd.Context(), data)
	if err != nil {
		var importErr *service.ImportError
		if errors.As(err, &importErr) {
			printFindings(cmd, file, importErr.Findings)
			return fmt.Errorf("%s: rejected", file)
		}
		return fmt.Errorf("%s: %w", file, err)
	}

	cache.ImportedFiles[file] = importedFile{
		FilePath:   file,
		FileHash:   hash,
		ImportedAt: time.Now().UTC(),
	}
	fmt.Fprintf(out, "%s: imported %d documents in %d domains\n", file, documents, domains)
	return nil
}
