package process_blob

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"memscan/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// MaxSavedRegion is the largest region Save writes to disk.
const MaxSavedRegion = 100 * 1024 * 1024

// SaveStats counts what Save did with each region of the memory map.
type SaveStats struct {
	Saved       int
	NotReadable int
	TooLarge    int
	ReadErrors  int
}

// Save writes proc's memory map and readable regions to dirname in the layout Load reads.
func Save(proc process.Process, name, dirname string) (SaveStats, error) {
	var stats SaveStats
	log := logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "dump_save"))

	if err := os.MkdirAll(dirname, 0755); err != nil {
		return stats, fmt.Errorf("failed to create directory: %w", err)
	}

	metadata := struct {
		PID  process.ProcessID `json:"pid"`
		Name string            `json:"name"`
	}{
		PID:  proc.GetPID(),
		Name: name,
	}
	if err := writeJSON(filepath.Join(dirname, "metadata.json"), metadata); err != nil {
		return stats, err
	}

	if err := proc.UpdateMemoryMap(); err != nil {
		return stats, fmt.Errorf("failed to update memory map: %w", err)
	}
	mm, err := proc.GetMemoryMap()
	if err != nil {
		return stats, fmt.Errorf("failed to get memory map: %w", err)
	}
	if err := writeJSON(filepath.Join(dirname, "process_memory_map.json"), mm); err != nil {
		return stats, err
	}

	for _, region := range mm {
		if !region.IsReadable() {
			stats.NotReadable++
			continue
		}
		if region.Size > MaxSavedRegion {
			log.Infoln("Skipping large region at", fmt.Sprintf("0x%x", region.Address), "size:", region.Size/1024/1024, "MB")
			stats.TooLarge++
			continue
		}

		data, err := proc.ReadMemory(process.ProcessMemoryAddress(region.Address), process.ProcessMemorySize(region.Size))
		if err != nil {
			if process.IsUnavailable(err) {
				return stats, err
			}
			log.Debugln("Failed to read region at", fmt.Sprintf("0x%x", region.Address), ":", err)
			stats.ReadErrors++
			continue
		}

		filename := filepath.Join(dirname, fmt.Sprintf("blob_0x%x_%d.bin", region.Address, region.Size))
		if err := os.WriteFile(filename, data, 0644); err != nil {
			return stats, fmt.Errorf("failed to write %s: %w", filename, err)
		}
		stats.Saved++
	}

	log.Infoln("Saved", stats.Saved, "regions to", dirname, "read errors:", stats.ReadErrors)
	return stats, nil
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
