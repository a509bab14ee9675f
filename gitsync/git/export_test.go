package git

var RejectedPathsForTest = rejectedPaths
