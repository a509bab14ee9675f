package bitbucket

// Wire types of the Bitbucket Cloud REST API 2.0, limited to
// the fields this package reads or writes.

type paginated[T any] struct {
	Size     int    `json:"size"`
	Page     int    `json:"page"`
	PageLen  int    `json:"pagelen"`
	Next     string `json:"next,omitempty"`
	Previous string `json:"previous,omitempty"`
	Values   []T    `json:"values"`
}

type link struct {
	Href string `json:"href"`
}

type links struct {
	Self   link `json:"self"`
	HTML   link `json:"html"`
	Avatar link `json:"avatar"`
}

type account struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	UUID        string `json:"uuid"`
	Links       links  `json:"links"`
}

type workspace struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type workspaceMembership struct {
	Workspace workspace `json:"workspace"`
}

type branchRef struct {
	Name string `json:"name"`
}

type repository struct {
	Name       string     `json:"name"`
	FullName   string     `json:"full_name"`
	IsPrivate  bool       `json:"is_private"`
	Links      links      `json:"links"`
	MainBranch *branchRef `json:"mainbranch,omitempty"`
}

type newRepository struct {
	SCM       string `json:"scm"`
	Name      string `json:"name"`
	IsPrivate bool   `json:"is_private"`
}

type repositoryPermission struct {
	Permission string `json:"permission"`
}

type treeEntry struct {
	Type   string `json:"type"`
	Path   string `json:"path"`
	Commit struct {
		Links links `json:"links"`
	} `json:"commit"`
	// Values is set when the path lists as a directory.
	Values []treeEntry `json:"values,omitempty"`
}

type commitTarget struct {
	Hash string `json:"hash"`
}

type branch struct {
	Name   string       `json:"name"`
	Target commitTarget `json:"target"`
}

type author struct {
	Raw  string   `json:"raw"`
	User *account `json:"user,omitempty"`
}

type commit struct {
	Hash    string `json:"hash"`
	Message string `json:"message"`
	Date    string `json:"date"`
	Author  author `json:"author"`
}

type endpoint struct {
	Branch branchRef `json:"branch"`
}

type pullRequest struct {
	ID          int      `json:"id,omitempty"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	State       string   `json:"state,omitempty"`
	Source      endpoint `json:"source"`
	Destination endpoint `json:"destination"`
	Links       *links   `json:"links,omitempty"`
}

type content struct {
	Raw string `json:"raw"`
}

type comment struct {
	Content content `json:"content"`
}
