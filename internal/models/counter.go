package models

// Counter tracks page views for one URL. Created on first increment,
// updated in place afterwards.
type Counter struct {
	URL     string `gorm:"primaryKey;size:512" json:"url"`
	Title   string `gorm:"size:512" json:"title"`
	Hits    int64  `json:"time"`
	Updated int64  `json:"updated"`
}

// ConfigRecord is the single-row configuration blob for a deployment.
// Data holds an opaque JSON key-value map; no schema is enforced beyond
// the keys handlers consume.
type ConfigRecord struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Data string `gorm:"type:text" json:"data"`
}
