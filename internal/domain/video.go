package domain

// Video is a single recommended track, in backend relevance order.
type Video struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	ChannelTitle string `json:"channel_title"`
}

// Recommendation is the successful outcome of a classification request.
type Recommendation struct {
	Genre  string
	Videos []Video
}
