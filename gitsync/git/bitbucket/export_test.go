package bitbucket

var ParseAuthor = parseAuthor
