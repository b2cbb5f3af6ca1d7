package platform

import "path"

// Item statuses.
const (
	StatusRegistered = "REGISTERED"
	StatusActive     = "ACTIVE"
	StatusTrashed    = "TRASHED"
)

// Item types.
const (
	TypeFile       = "file"
	TypeFolder     = "folder"
	TypeNameFolder = "name_folder"
)

// Item is a file or folder as the BFF reports it.
type Item struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ParentID      string `json:"parent"`
	ParentPath    string `json:"parent_path"`
	Type          string `json:"type"`
	Zone          Zone   `json:"zone"`
	Size          int64  `json:"size"`
	Status        string `json:"status"`
	ContainerCode string `json:"container_code"`
	Owner         string `json:"owner"`
	CreatedTime   string `json:"created_time,omitempty"`
	LastUpdated   string `json:"last_updated_time,omitempty"`
}

// Path returns the object path of the item inside its project.
func (i *Item) Path() string {
	if i.ParentPath == "" {
		return i.Name
	}

	return path.Join(i.ParentPath, i.Name)
}

// IsFolder reports whether the item can hold children.
func (i *Item) IsFolder() bool {
	return i.Type == TypeFolder || i.Type == TypeNameFolder
}

// envelope is the BFF's standard response wrapper.
type envelope[T any] struct {
	Code       int    `json:"code"`
	ErrorMsg   string `json:"error_msg"`
	Result     T      `json:"result"`
	Page       int    `json:"page"`
	Total      int    `json:"total"`
	NumOfPages int    `json:"num_of_pages"`
}
