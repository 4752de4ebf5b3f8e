package rpm

// RPM header tag numbers this reader cares about. The full tag space
// is much larger; only the tags needed to satisfy the Reader
// capability are listed.
const (
	tagName        = 1000
	tagVersion     = 1001
	tagRelease     = 1002
	tagEpoch       = 1003
	tagSummary     = 1004
	tagArch        = 1022
	tagFileSizes   = 1028
	tagFileModes   = 1030
	tagFileMD5s    = 1035
	tagFileLinktos = 1036
	tagFileUser    = 1039
	tagFileGroup   = 1040
	tagRequireName = 1049
	tagRequireVer  = 1050
	tagDirIndexes  = 1116
	tagBasenames   = 1117
	tagDirnames    = 1118
)

// Entry value types (RPM's ordinary tag-table type codes).
const (
	typeNull        = 0
	typeChar        = 1
	typeInt8        = 2
	typeInt16       = 3
	typeInt32       = 4
	typeInt64       = 5
	typeString      = 6
	typeBin         = 7
	typeStringArray = 8
	typeI18NString  = 9
)

const headerMagic = "\x8e\xad\xe8\x01"
