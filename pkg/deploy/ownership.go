package deploy

import (
	"os"
	"os/user"
	"strconv"

	"github.com/cuemby/truss/pkg/log"
)

// applyOwnership sets whichever of owner/group resolves to a numeric
// or named id (an unresolved one is left unchanged), if the process
// has the capability; failures are
// logged, not returned, per spec.md §4.1 ("apply ownership if the
// caller has capability").
func applyOwnership(path, owner, group string) {
	if owner == "" && group == "" {
		return
	}

	uid := -1
	gid := -1

	if owner != "" {
		if n, err := strconv.Atoi(owner); err == nil {
			uid = n
		} else if u, err := user.Lookup(owner); err == nil {
			uid, _ = strconv.Atoi(u.Uid)
		}
	}
	if group != "" {
		if n, err := strconv.Atoi(group); err == nil {
			gid = n
		} else if g, err := user.LookupGroup(group); err == nil {
			gid, _ = strconv.Atoi(g.Gid)
		}
	}

	if uid == -1 && gid == -1 {
		return
	}
	if err := os.Chown(path, uid, gid); err != nil {
		log.WithComponent("deploy").Debug().Str("path", path).Err(err).Msg("chown skipped, insufficient capability")
	}
}
