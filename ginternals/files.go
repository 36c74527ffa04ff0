package ginternals

import (
	"path"
	"strings"
)

// We keep the refs paths in unix format since they must be stored
// this way. The backends are in charge of converting them to the
// current system when needed
const (
	refsDirName      = "refs"
	refsTagsRelPath  = refsDirName + "/tags"
	refsHeadsRelPath = refsDirName + "/heads"
	logsDirName      = "logs"
)

// LocalTagFullName returns the full name of a tag
// ex. for `my-tag` returns `refs/tags/my-tag`
func LocalTagFullName(shortName string) string {
	return path.Join(refsTagsRelPath, shortName)
}

// LocalTagShortName returns the short name of a tag
// ex. for `refs/tags/my-tag` returns `my-tag`
func LocalTagShortName(fullName string) string {
	return strings.TrimPrefix(fullName, refsTagsRelPath+"/")
}

// LocalBranchFullName returns the full name of a branch
// ex. for `main` returns `refs/heads/main`
func LocalBranchFullName(shortName string) string {
	return path.Join(refsHeadsRelPath, shortName)
}

// LocalBranchShortName returns the short name of a branch
// ex. for `refs/heads/main` returns `main`
func LocalBranchShortName(fullName string) string {
	return strings.TrimPrefix(fullName, refsHeadsRelPath+"/")
}

// RefsDir returns the relative path of the directory that contains
// all the refs
func RefsDir() string {
	return refsDirName
}

// ReflogPath returns the relative path of the log of a reference
// ex. for `refs/heads/main` returns `logs/refs/heads/main`
func ReflogPath(refName string) string {
	return path.Join(logsDirName, refName)
}

// PackedRefsFile is the name of the file containing the packed
// references
const PackedRefsFile = "packed-refs"

// PackedRefsHeader is the header line of the packed-refs file
const PackedRefsHeader = "# pack-refs with: peeled fully-peeled sorted"
