// Command extmem-selftest brings up a BlockManager from a disk config
// file, allocates and writes a handful of blocks, reads them back, and
// reports mismatches. It is a smoke test over the core, not the
// benchmark/CLI framework the library itself stays out of.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"

	"github.com/outofcore/extmem"
	"github.com/outofcore/extmem/file"
	"github.com/outofcore/extmem/internal/interfaces"
	"github.com/outofcore/extmem/internal/logging"
)

const (
	exitOK          = 0
	exitDataMismatch = 1
	exitSetupFailed  = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to a disk config file (see STXXL_CONFIG format)")
	blockSize := flag.Int64("block-size", 1<<20, "block size in bytes")
	numBlocks := flag.Int("num-blocks", 16, "number of blocks to round-trip")
	flag.Parse()

	logger := logging.NewLogger(&logging.Config{Level: logging.LevelInfo, Output: os.Stderr})

	path := extmem.ResolveConfigPath(*configPath)
	entries, err := extmem.LoadDiskConfig(path)
	if err != nil {
		logger.Errorf("loading disk config %s: %v", path, err)
		return exitSetupFailed
	}

	var configs []extmem.DiskConfig
	var cleanup []func()
	for _, e := range entries {
		backend, closeFn, err := openBackend(e)
		if err != nil {
			logger.Errorf("opening disk %s: %v", e.Path, err)
			return exitSetupFailed
		}
		if err := backend.SetSize(e.Capacity); err != nil {
			logger.Errorf("sizing disk %s: %v", e.Path, err)
			return exitSetupFailed
		}
		cleanup = append(cleanup, closeFn)
		configs = append(configs, extmem.DiskConfig{
			Backend:  backend,
			Capacity: e.Capacity,
			Policy:   extmem.PolicyNone,
			Workers:  1,
			Debug:    true,
		})
	}
	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	manager, err := extmem.NewBlockManager(configs, logger)
	if err != nil {
		logger.Errorf("creating block manager: %v", err)
		return exitSetupFailed
	}
	defer manager.Shutdown()

	bids, err := manager.NewBlocks(extmem.StripingStrategy(), *numBlocks, *blockSize)
	if err != nil {
		logger.Errorf("allocating blocks: %v", err)
		return exitSetupFailed
	}
	defer manager.DeleteBlocks(bids)

	mismatch := false
	for i, bid := range bids {
		buf, err := extmem.NewAlignedBuffer(int(*blockSize))
		if err != nil {
			logger.Errorf("allocating buffer: %v", err)
			return exitSetupFailed
		}
		pattern := byte(i)
		for j := range buf.Bytes() {
			buf.Bytes()[j] = pattern
		}
		if err := manager.Disk(bid.Disk).Queue.Awrite(buf.Bytes(), bid.Offset, nil).Wait(); err != nil {
			logger.Errorf("writing block %d: %v", i, err)
			buf.Release()
			return exitSetupFailed
		}

		got := make([]byte, *blockSize)
		if err := manager.Disk(bid.Disk).Queue.Aread(got, bid.Offset, nil).Wait(); err != nil {
			logger.Errorf("reading block %d: %v", i, err)
			buf.Release()
			return exitSetupFailed
		}
		if !bytes.Equal(got, buf.Bytes()) {
			logger.Errorf("block %d: data mismatch on disk %d", i, bid.Disk)
			mismatch = true
		}
		buf.Release()
	}

	if mismatch {
		return exitDataMismatch
	}
	fmt.Fprintf(os.Stderr, "selftest ok: %d blocks across %d disks\n", len(bids), manager.NumDisks())
	return exitOK
}

// openBackend opens the backend named by e.Backend, creating a unique
// temp file when e.Path is the "###" marker. The returned func removes
// any temp file on exit.
func openBackend(e extmem.DiskConfigLine) (interfaces.FileBackend, func(), error) {
	path := e.Path
	noop := func() {}
	if e.Temp {
		f, err := os.CreateTemp("", "extmem-disk-*")
		if err != nil {
			return nil, noop, err
		}
		path = f.Name()
		f.Close()
		noop = func() { os.Remove(path) }
	}

	switch e.Backend {
	case "memory":
		return file.NewMemory(e.Capacity), noop, nil
	case "mmap":
		b, err := file.OpenMmap(path, os.O_RDWR|os.O_CREATE, 0o600, e.Capacity)
		return b, noop, err
	case "aio":
		b, err := file.OpenAIO(path, os.O_RDWR|os.O_CREATE, 0o600)
		return b, noop, err
	default: // "syscall"
		b, err := file.OpenSyscall(path, os.O_RDWR|os.O_CREATE, 0o600, false)
		return b, noop, err
	}
}
