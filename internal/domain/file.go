package domain

// UploadInfo is the backend's upload policy.
type UploadInfo struct {
	MaxFileSize   int64    `json:"max_file_size"`
	MaxFileSizeMB float64  `json:"max_file_size_mb"`
	AllowedTypes  []string `json:"allowed_types"`
}

// UploadResult describes a stored upload.
type UploadResult struct {
	FileName    string `json:"file_name"`
	FilePath    string `json:"file_path"`
	FileURL     string `json:"file_url"`
	FileSize    int64  `json:"file_size"`
	ContentType string `json:"content_type"`
}
