package dto

type CreateNoteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type UpdateNoteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type ShareRequest struct {
	NoteID string `json:"note_id"`
}

type ShareResponse struct {
	ShareID  string `json:"share_id"`
	ShareURL string `json:"share_url"`
}

type DeleteResponse struct {
	Success bool `json:"success"`
}
