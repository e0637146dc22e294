// Package api holds the JSON wire types shared by the uploader and the
// reference upload server.
package api

const (
	PathSingle    = "/api/v1/uploads/single"
	PathChunk     = "/api/v1/uploads/chunk"
	PathBatch     = "/api/v1/uploads/batch"
	PathArtifacts = "/artifacts/"

	// ModeEmergency is the value of the upload mode header sent by the
	// emergency transport.
	ModeEmergency = "emergency"
)

type SingleRequest struct {
	FileName    string `json:"fileName" binding:"required"`
	FileContent string `json:"fileContent" binding:"required"`
	FileType    string `json:"fileType"`
}

type SingleResponse struct {
	FilePath string `json:"filePath"`
}

type ChunkRequest struct {
	ChunkIndex  int    `json:"chunkIndex" binding:"min=0"`
	TotalChunks int    `json:"totalChunks" binding:"required,min=1"`
	Data        string `json:"data" binding:"required"`
	FileName    string `json:"fileName" binding:"required"`
	FileType    string `json:"fileType"`
	SessionID   string `json:"sessionId,omitempty"`
	// Checksum is the hex BLAKE2b-256 digest of the whole file, sent with the
	// last chunk.
	Checksum string `json:"checksum,omitempty"`
}

type ChunkResponse struct {
	SessionID      string `json:"sessionId"`
	ReceivedChunks int    `json:"receivedChunks"`
	TotalChunks    int    `json:"totalChunks"`
	Complete       bool   `json:"complete"`
	FilePath       string `json:"filePath,omitempty"`
}

type BatchImage struct {
	FileName    string `json:"fileName"`
	FileContent string `json:"fileContent"`
	FileType    string `json:"fileType"`
}

type BatchRequest struct {
	Images []BatchImage `json:"images" binding:"required,min=1,dive"`
}

type BatchResult struct {
	FileName string `json:"fileName,omitempty"`
	Success  bool   `json:"success"`
	FilePath string `json:"filePath,omitempty"`
	Error    string `json:"error,omitempty"`
}

type BatchSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

type BatchResponse struct {
	Results []BatchResult `json:"results"`
	Summary BatchSummary  `json:"summary"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}
