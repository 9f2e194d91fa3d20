package models

// Insights documents the shape requested from the completion provider. Stored
// insights stay raw JSON; this type is only a decoding convenience.
type Insights struct {
	Emotions            []Emotion    `json:"emotions"`
	KeyInsights         []KeyInsight `json:"keyInsights"`
	ReflectionQuestions []string     `json:"reflectionQuestions"`
}

type Emotion struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
	Color string `json:"color"`
}

type KeyInsight struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}
