package core

import "time"

// ProcessingStatus tracks a message through the pipeline.
type ProcessingStatus string

const (
	StatusNew             ProcessingStatus = "NEW"
	StatusEmbedded        ProcessingStatus = "EMBEDDED"
	StatusClustered       ProcessingStatus = "CLUSTERED"
	StatusTemplateMatched ProcessingStatus = "TEMPLATE_MATCHED"
	StatusProcessed       ProcessingStatus = "PROCESSED"
	StatusError           ProcessingStatus = "ERROR"
)

// ValidProcessingStatus reports whether s names a known status.
func ValidProcessingStatus(s string) bool {
	switch ProcessingStatus(s) {
	case StatusNew, StatusEmbedded, StatusClustered, StatusTemplateMatched, StatusProcessed, StatusError:
		return true
	}
	return false
}

// TransactionStatus tracks a transaction through review.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "PENDING"
	TxMatched   TransactionStatus = "MATCHED"
	TxValidated TransactionStatus = "VALIDATED"
	TxApproved  TransactionStatus = "APPROVED"
	TxRejected  TransactionStatus = "REJECTED"
	TxCompleted TransactionStatus = "COMPLETED"
)

// DocType partitions the vector index.
type DocType string

const (
	DocMessage  DocType = "MESSAGE"
	DocTemplate DocType = "TEMPLATE"
)

// FieldType classifies a variable field's content.
type FieldType string

const (
	FieldAmount       FieldType = "AMOUNT"
	FieldDate         FieldType = "DATE"
	FieldCode         FieldType = "CODE"
	FieldNumeric      FieldType = "NUMERIC"
	FieldAlphanumeric FieldType = "ALPHANUMERIC"
	FieldText         FieldType = "TEXT"
)

// Severity grades a single analyzer finding.
type Severity string

const (
	SeverityCritical   Severity = "CRITICAL"
	SeverityWarning    Severity = "WARNING"
	SeverityInfo       Severity = "INFO"
	SeverityAcceptable Severity = "ACCEPTABLE"
)

// RiskLevel is the analyzer's overall judgement.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// MessageTypes lists the supported MT7xx documentary-credit message types.
var MessageTypes = []string{
	"MT700", "MT701", "MT705", "MT707", "MT708", "MT710", "MT711",
	"MT720", "MT721", "MT730", "MT732", "MT734", "MT740", "MT742",
	"MT744", "MT747", "MT750",
}

// ValidMessageType reports whether t is a supported MT7xx type.
func ValidMessageType(t string) bool {
	for _, mt := range MessageTypes {
		if mt == t {
			return true
		}
	}
	return false
}

// Message is a single ingested SWIFT message.
type Message struct {
	ID           string            `json:"id"`
	MessageType  string            `json:"messageType"`
	RawContent   string            `json:"rawContent"`
	ParsedFields map[string]string `json:"parsedFields"`
	SenderID     string            `json:"senderId"`
	ReceiverID   string            `json:"receiverId"`
	Timestamp    time.Time         `json:"timestamp"`
	Status       ProcessingStatus  `json:"status"`
	ClusterID    string            `json:"clusterId,omitempty"`
	TemplateID   string            `json:"templateId,omitempty"`
	Notes        string            `json:"notes,omitempty"`
}

// TradingPair returns the routing key a template is scoped to.
func (m Message) TradingPair() string {
	return m.SenderID + ":" + m.ReceiverID
}

// VectorEmbedding is the vector-store projection of a message or template.
type VectorEmbedding struct {
	ID             string    `json:"id"`
	DocType        DocType   `json:"docType"`
	Embedding      []float64 `json:"embedding"`
	ClusterID      string    `json:"clusterId,omitempty"`
	ContentPreview string    `json:"contentPreview"`
	CreatedAt      time.Time `json:"createdAt"`
}

// VariableField describes one varying tag within a template.
type VariableField struct {
	Tag          string    `json:"tag"`
	FieldName    string    `json:"fieldName"`
	Type         FieldType `json:"type"`
	SampleValues []string  `json:"sampleValues"`
	Required     bool      `json:"required"`
}

// Template is a recurring message shape derived for one trading pair.
type Template struct {
	ID                string          `json:"id"`
	MessageType       string          `json:"messageType"`
	BuyerID           string          `json:"buyerId"`
	SellerID          string          `json:"sellerId"`
	TemplateContent   string          `json:"templateContent"`
	VariableFields    []VariableField `json:"variableFields"`
	ClusterID         string          `json:"clusterId"`
	CentroidEmbedding []float64       `json:"centroidEmbedding,omitempty"`
	MessageCount      int             `json:"messageCount"`
	Confidence        float64         `json:"confidence"`
	QualityScore      float64         `json:"qualityScore"`
	Description       string          `json:"description"`
	SampleMessageIDs  []string        `json:"sampleMessageIds"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// MatchingDetails records how a transaction's match was derived.
type MatchingDetails struct {
	PrimaryTemplateID string             `json:"primaryTemplateId"`
	FieldConfidences  map[string]float64 `json:"fieldConfidences"`
	Warnings          []string           `json:"warnings,omitempty"`
	Suggestions       []string           `json:"suggestions,omitempty"`
}

// AuditEntry is one line of a transaction's audit trail.
type AuditEntry struct {
	At     time.Time `json:"at"`
	Action string    `json:"action"`
	Detail string    `json:"detail,omitempty"`
}

// Transaction is the structured record produced by matching a message.
type Transaction struct {
	ID                 string              `json:"id"`
	SwiftMessageID     string              `json:"swiftMessageId"`
	TemplateID         string              `json:"templateId"`
	MessageType        string              `json:"messageType"`
	ExtractedData      map[string]string   `json:"extractedData"`
	UserEnteredData    map[string]string   `json:"userEnteredData"`
	MatchConfidence    float64             `json:"matchConfidence"`
	MatchingDetails    MatchingDetails     `json:"matchingDetails"`
	Status             TransactionStatus   `json:"status"`
	BuyerID            string              `json:"buyerId"`
	SellerID           string              `json:"sellerId"`
	StructuredAnalysis *StructuredAnalysis `json:"structuredAnalysis,omitempty"`
	ProcessedAt        time.Time           `json:"processedAt"`
	Metadata           map[string]string   `json:"metadata"`
	AuditTrail         []AuditEntry        `json:"auditTrail"`
}

// FieldFinding is one analyzer observation about a field.
type FieldFinding struct {
	Tag            string   `json:"tag"`
	Name           string   `json:"name"`
	Severity       Severity `json:"severity"`
	Description    string   `json:"description"`
	ActualValue    string   `json:"actualValue,omitempty"`
	ExpectedValue  string   `json:"expectedValue,omitempty"`
	BusinessImpact string   `json:"businessImpact,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
}

// StructuredAnalysis is the narrative analyzer's output. A sentinel analysis
// (Sentinel=true) means the provider was unavailable; absence of findings is
// not absence of risk.
type StructuredAnalysis struct {
	TransactionSummary string         `json:"transactionSummary"`
	FieldFindings      []FieldFinding `json:"fieldFindings"`
	OverallRisk        RiskLevel      `json:"overallRisk"`
	Recommendation     string         `json:"recommendation"`
	Notes              string         `json:"notes,omitempty"`
	Sentinel           bool           `json:"sentinel,omitempty"`
}
