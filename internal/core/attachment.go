package core

import "time"

// AttachmentRef is the frontmatter-visible record of a file attached to a
// task. The file itself lives at
// "<task-dir>/attachments/<id><ext>"; StoredName is that on-disk filename.
type AttachmentRef struct {
	ID         string    `yaml:"id" json:"id"`
	Filename   string    `yaml:"filename" json:"filename"`
	StoredName string    `yaml:"storedName" json:"storedName"`
	MimeType   string    `yaml:"mimeType" json:"mimeType"`
	Size       int64     `yaml:"size" json:"size"`
	CreatedAt  time.Time `yaml:"createdAt" json:"createdAt"`
}

// IsImage reports whether the attachment's MIME type indicates an image,
// the signal the Supervisor uses to decide whether to inline it in a prompt
// versus reference it by path.
func (a AttachmentRef) IsImage() bool {
	return len(a.MimeType) >= 6 && a.MimeType[:6] == "image/"
}
