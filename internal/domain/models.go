// Package domain defines the persistence models for documentations, their
// ingestion units and chunks, crawled web metadata, chat threads, messages and
// stream fragments. These types are mapped with GORM and form the core data
// layer of the document chat backend.
package domain

import (
	"time"
)

// Documentation is a user-owned collection of units (uploaded files or
// scraped pages) that can be selected as chat context.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - UserID: owner; indexed for listing.
//   - Type: files | web.
//   - Link: source URL for web documentation.
//   - TotalPage: number of units expected.
//   - ActivePage: number of units completed. Kept in [0, TotalPage].
//   - Draft: set for web documentation created from a crawl.
//   - Status: aggregate status (ready, scan-all).
type Documentation struct {
	ID         string              `json:"id"          gorm:"type:char(36);primaryKey"`
	UserID     string              `json:"user_id"     gorm:"type:varchar(64);not null;index:idx_documentation_user"`
	Name       string              `json:"name"        gorm:"type:varchar(255);not null"`
	Type       DocType             `json:"type"        gorm:"type:varchar(16);not null;check:type IN ('files','web')"`
	Link       string              `json:"link,omitempty" gorm:"type:text"`
	TotalPage  int                 `json:"total_page"  gorm:"not null;default:0"`
	ActivePage int                 `json:"active_page" gorm:"not null;default:0"`
	Draft      bool                `json:"draft"       gorm:"not null;default:false"`
	Status     DocumentationStatus `json:"status,omitempty" gorm:"type:varchar(16)"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// TableName returns the database table name for Documentation.
func (Documentation) TableName() string { return "documentations" }

// FileDocument is one uploaded file of a files Documentation.
type FileDocument struct {
	ID              string     `json:"id"               gorm:"type:char(36);primaryKey"`
	DocumentationID string     `json:"documentation_id" gorm:"type:char(36);not null;index"`
	FileName        string     `json:"file_name"        gorm:"type:varchar(255);not null"`
	FilePrefix      string     `json:"file_prefix"      gorm:"type:varchar(512);not null"`
	FileSize        int64      `json:"file_size"        gorm:"not null;default:0"`
	Status          UnitStatus `json:"status"           gorm:"type:varchar(16);not null;index"`
	TotalChunks     int        `json:"total_chunks"     gorm:"not null;default:0"`
	LastError       string     `json:"last_error,omitempty" gorm:"type:text"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	Documentation Documentation `json:"-" gorm:"foreignKey:DocumentationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for FileDocument.
func (FileDocument) TableName() string { return "file_documents" }

// PageDocument is one scraped page of a web Documentation. URL is unique per
// parent; re-scraping reuses the row.
type PageDocument struct {
	ID              string     `json:"id"               gorm:"type:char(36);primaryKey"`
	DocumentationID string     `json:"documentation_id" gorm:"type:char(36);not null;uniqueIndex:ux_page_doc_url,priority:1"`
	URL             string     `json:"url"              gorm:"type:varchar(2048);not null;uniqueIndex:ux_page_doc_url,priority:2"`
	Title           string     `json:"title"            gorm:"type:varchar(512)"`
	Status          UnitStatus `json:"status"           gorm:"type:varchar(16);not null;index"`
	Markdown        string     `json:"markdown,omitempty" gorm:"type:text"`
	TotalChunks     int        `json:"total_chunks"     gorm:"not null;default:0"`
	LastError       string     `json:"last_error,omitempty" gorm:"type:text"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	Documentation Documentation `json:"-" gorm:"foreignKey:DocumentationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for PageDocument.
func (PageDocument) TableName() string { return "page_documents" }

// ChunkFields holds the columns shared by both chunk collections. Chunks are
// immutable once written and are removed in bulk with their unit.
type ChunkFields struct {
	ID              string    `json:"id"               gorm:"type:char(36);primaryKey"`
	DocumentationID string    `json:"documentation_id" gorm:"type:char(36);not null;index"`
	UnitID          string    `json:"unit_id"          gorm:"type:char(36);not null;index"`
	ChunkIndex      int       `json:"chunk_index"      gorm:"not null"`
	Heading         string    `json:"heading,omitempty" gorm:"type:varchar(512)"`
	Content         string    `json:"content"          gorm:"type:text;not null"`
	Embedding       []byte    `json:"-"                gorm:"type:blob;not null"`
	CreatedAt       time.Time `json:"created_at"`
}

// FileChunk is a chunk of a FileDocument.
type FileChunk struct {
	ChunkFields
}

// TableName returns the database table name for FileChunk.
func (FileChunk) TableName() string { return "file_chunks" }

// PageChunk is a chunk of a PageDocument.
type PageChunk struct {
	ChunkFields
}

// TableName returns the database table name for PageChunk.
func (PageChunk) TableName() string { return "page_chunks" }

// ChunkTable returns the chunk table that holds chunks of units of kind k.
func (k UnitKind) ChunkTable() string {
	if k == UnitPage {
		return PageChunk{}.TableName()
	}
	return FileChunk{}.TableName()
}

// WebInfo holds site metadata captured when a web Documentation is created.
type WebInfo struct {
	ID              string    `json:"id"               gorm:"type:char(36);primaryKey"`
	DocumentationID string    `json:"documentation_id" gorm:"type:char(36);not null;uniqueIndex"`
	Name            string    `json:"name"             gorm:"type:varchar(512)"`
	Description     string    `json:"description"      gorm:"type:text"`
	FavIcon         string    `json:"fav_icon"         gorm:"type:text"`
	URL             string    `json:"url"              gorm:"type:text"`
	RawData         string    `json:"raw_data,omitempty" gorm:"type:text"`
	CreatedAt       time.Time `json:"created_at"`

	Documentation Documentation `json:"-" gorm:"foreignKey:DocumentationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for WebInfo.
func (WebInfo) TableName() string { return "web_infos" }

// WebLinks holds the crawled sitemap of a web Documentation. Links is the
// source of truth for how many pages exist.
type WebLinks struct {
	ID              string    `json:"id"               gorm:"type:char(36);primaryKey"`
	DocumentationID string    `json:"documentation_id" gorm:"type:char(36);not null;uniqueIndex"`
	BaseURL         string    `json:"base_url"         gorm:"type:text"`
	Links           LinkList  `json:"links"            gorm:"type:text;not null"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	Documentation Documentation `json:"-" gorm:"foreignKey:DocumentationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for WebLinks.
func (WebLinks) TableName() string { return "web_links" }

// Thread is a conversation owned by a user. SelectedDocumentation is the
// ordered set of Documentation ids used as retrieval context.
type Thread struct {
	ID                    string     `json:"id"      gorm:"type:char(36);primaryKey"`
	UserID                string     `json:"user_id" gorm:"type:varchar(64);not null;index:idx_user_threads"`
	Name                  string     `json:"name"    gorm:"type:varchar(255);not null;default:'New Chat'"`
	SelectedDocumentation StringList `json:"selected_documentation" gorm:"type:text;not null"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Thread.
func (Thread) TableName() string { return "threads" }

// Message is one turn of a Thread.
//
// An assistant message is created with IsStreaming=true, empty Content and a
// StreamID. When the stream finalizes, Content holds the full text and
// IsStreaming is cleared. StreamID is kept for replay.
type Message struct {
	ID           string       `json:"id"        gorm:"type:char(36);primaryKey"`
	ThreadID     string       `json:"thread_id" gorm:"type:char(36);not null;index:idx_thread_msgs,priority:1"`
	Role         Role         `json:"role"      gorm:"type:varchar(16);not null;check:role IN ('user','assistant')"`
	Content      string       `json:"content"   gorm:"type:text;not null"`
	StreamID     string       `json:"stream_id,omitempty" gorm:"type:char(36);index"`
	IsStreaming  bool         `json:"is_streaming" gorm:"not null;default:false"`
	StreamStatus StreamStatus `json:"stream_status,omitempty" gorm:"type:varchar(16)"`
	CreatedAt    time.Time    `json:"created_at" gorm:"index:idx_thread_msgs,priority:2"`
	UpdatedAt    time.Time    `json:"updated_at"`

	Thread Thread `json:"-" gorm:"foreignKey:ThreadID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// StreamFragment is one persisted piece of generated text. Seq orders the
// fragments of a stream; (StreamID, Seq) is unique.
type StreamFragment struct {
	ID        uint      `json:"-"         gorm:"primaryKey;autoIncrement"`
	StreamID  string    `json:"stream_id" gorm:"type:char(36);not null;uniqueIndex:ux_stream_seq,priority:1"`
	Seq       int       `json:"seq"       gorm:"not null;uniqueIndex:ux_stream_seq,priority:2"`
	Text      string    `json:"text"      gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for StreamFragment.
func (StreamFragment) TableName() string { return "stream_fragments" }

// UsageCounter tracks metered consumption of one feature by one user within
// the current period.
type UsageCounter struct {
	UserID      string    `gorm:"type:varchar(64);primaryKey"`
	Feature     string    `gorm:"type:varchar(64);primaryKey"`
	Used        int64     `gorm:"not null;default:0"`
	PeriodStart time.Time `gorm:"not null"`
	UpdatedAt   time.Time
}

// TableName returns the database table name for UsageCounter.
func (UsageCounter) TableName() string { return "usage_counters" }
