package sqlite

import (
	"log"
	"net/url"
	"os"
	"os/exec"
	"strings"
)

// archivePath returns the database file behind a DSN, or "" for in-memory
// and unparseable DSNs. Both bare paths and file: URIs are accepted.
func archivePath(dsn string) string {
	if dsn == "" || dsn == ":memory:" {
		return ""
	}
	if !strings.HasPrefix(dsn, "file:") {
		return dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return ""
	}
	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	if p == ":memory:" {
		return ""
	}
	return p
}

// walOpenFailed matches the open errors left behind by an importer that was
// killed mid-write.
func walOpenFailed(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") || strings.Contains(msg, "database is locked")
}

// walAbandoned reports whether -wal/-shm files exist for dbPath and no
// process holds them. Without lsof it answers false and nothing is removed.
func walAbandoned(dbPath string) bool {
	wal, shm := dbPath+"-wal", dbPath+"-shm"
	if !exists(wal) && !exists(shm) {
		return false
	}
	lsof, err := exec.LookPath("lsof")
	if err != nil {
		return false
	}
	out, err := exec.Command(lsof, "-t", dbPath, wal, shm).Output()
	if err != nil {
		// lsof exits 1 when nothing holds the files.
		return true
	}
	return strings.TrimSpace(string(out)) == ""
}

func dropWAL(dbPath string) {
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(dbPath + suffix); err != nil && !os.IsNotExist(err) {
			log.Printf("sqlite: remove abandoned %s%s: %v", dbPath, suffix, err)
		}
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
