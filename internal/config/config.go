package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FieldConfig describes a field of the Milvus collection schema.
type FieldConfig struct {
	Name         string `yaml:"name"`
	DataType     string `yaml:"dataType"` // "Int64", "VarChar", "FloatVector", ...
	IsPrimaryKey bool   `yaml:"isPrimaryKey"`
	IsAutoID     bool   `yaml:"isAutoID"`
	Dim          int    `yaml:"dim,omitempty"`       // vector types only
	MaxLength    int    `yaml:"maxLength,omitempty"` // VarChar only
}

// IndexConfig describes the vector index built on the Milvus collection.
type IndexConfig struct {
	FieldName  string                 `yaml:"fieldName"`
	IndexType  string                 `yaml:"indexType"`  // "IVF_FLAT", "HNSW", ...
	MetricType string                 `yaml:"metricType"` // "L2", "COSINE"
	Params     map[string]interface{} `yaml:"params"`
}

// SchemaConfig describes the Milvus collection layout.
type SchemaConfig struct {
	CollectionName string        `yaml:"collectionName"`
	Description    string        `yaml:"description"`
	VectorField    string        `yaml:"vectorField"`
	Fields         []FieldConfig `yaml:"fields"`
	Index          IndexConfig   `yaml:"index"`
}

// MilvusConfig holds the Milvus connection and schema configuration.
type MilvusConfig struct {
	Address string       `yaml:"address"`
	Schema  SchemaConfig `yaml:"schema"`
}

// RedisConfig holds the Redis connection configuration.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MySQLConfig holds the MySQL connection configuration.
type MySQLConfig struct {
	Address         string `yaml:"address"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	Database        string `yaml:"database"`
	MaxOpenConns    int    `yaml:"maxOpenConns"`
	MaxIdleConns    int    `yaml:"maxIdleConns"`
	ConnMaxLifetime int    `yaml:"connMaxLifetime"` // seconds
}

// MinIOConfig holds the MinIO object storage configuration.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Secure    bool   `yaml:"secure"`
}

// MongoConfig holds the MongoDB connection configuration.
type MongoConfig struct {
	Address  string `yaml:"address"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// EtcdConfig holds the etcd service discovery configuration.
type EtcdConfig struct {
	Endpoints []string `yaml:"endpoints"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
}

// KafkaConfig holds the Kafka connection configuration.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	IngestTopic   string   `yaml:"ingestTopic"`   // normalized document envelopes
	ConsumerGroup string   `yaml:"consumerGroup"`
}

// BleveConfig holds the lexical index configuration.
type BleveConfig struct {
	Path string `yaml:"path"` // on-disk index directory
}

// DatabaseConfigs groups all backing store configurations.
type DatabaseConfigs struct {
	Milvus  MilvusConfig `yaml:"milvus"`
	Bleve   BleveConfig  `yaml:"bleve"`
	Redis   RedisConfig  `yaml:"redis"`
	MySQL   MySQLConfig  `yaml:"mysql"`
	MinIO   MinIOConfig  `yaml:"minio"`
	MongoDB MongoConfig  `yaml:"mongodb"`
	Etcd    EtcdConfig   `yaml:"etcd"`
	Kafka   KafkaConfig  `yaml:"kafka"`
}

// ModelConfig selects a pluggable model backend at construction time.
// Provider is one of "ollama", "openai", "gemini".
type ModelConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"apiKey"`
	BaseURL  string `yaml:"baseURL"`
}

// RerankerConfig configures the cross-encoder scoring service.
type RerankerConfig struct {
	Endpoint string `yaml:"endpoint"` // HTTP scoring endpoint
	APIKey   string `yaml:"apiKey"`
	Model    string `yaml:"model"`
}

// ThesaurusEntry is one legal-term expansion rule: when Term matches the query
// (case-insensitive substring), all Synonyms are appended to it.
type ThesaurusEntry struct {
	Term     string   `yaml:"term"`
	Synonyms []string `yaml:"synonyms"`
}

// RetrievalConfig tunes the retrieval pipeline. Zero values fall back to the
// documented defaults (applied in LoadConfig).
type RetrievalConfig struct {
	TopK             int              `yaml:"topK"`
	VectorWeight     float64          `yaml:"vectorWeight"`
	LexicalWeight    float64          `yaml:"lexicalWeight"`
	RelevanceFloor   float64          `yaml:"relevanceFloor"`
	MaxContextTokens int              `yaml:"maxContextTokens"`
	ChunkSize        int              `yaml:"chunkSize"`    // target chunk size in estimated tokens
	ChunkOverlap     int              `yaml:"chunkOverlap"` // overlap in estimated tokens
	MaxDocChunks     int              `yaml:"maxDocChunks"` // diversity cap per document in final top-k
	CacheTTLSeconds  int              `yaml:"cacheTTLSeconds"`
	Thesaurus        []ThesaurusEntry `yaml:"thesaurus"` // merged with the built-in legal thesaurus
}

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	HTTPAddr string `yaml:"httpAddr"`
}

// AppInfo holds basic application identity.
type AppInfo struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// LoggerConfig holds the logger configuration.
type LoggerConfig struct {
	Level string `yaml:"level"`
}

// AppConfig is the root of the YAML configuration file.
type AppConfig struct {
	App       AppInfo         `yaml:"app"`
	Logger    LoggerConfig    `yaml:"logger"`
	Server    ServerConfig    `yaml:"server"`
	Databases DatabaseConfigs `yaml:"databases"`
	Embedding ModelConfig     `yaml:"embedding"`
	LLM       ModelConfig     `yaml:"llm"`
	Reranker  RerankerConfig  `yaml:"reranker"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
}

// Documented retrieval defaults.
const (
	DefaultTopK             = 5
	DefaultVectorWeight     = 0.7
	DefaultLexicalWeight    = 0.3
	DefaultRelevanceFloor   = 0.3
	DefaultMaxContextTokens = 3000
	DefaultChunkSize        = 500
	DefaultChunkOverlap     = 100
	DefaultMaxDocChunks     = 2
)

// LoadConfig reads and parses the YAML configuration file at path and applies
// retrieval defaults for unset values.
func LoadConfig(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyRetrievalDefaults(&cfg.Retrieval)
	return &cfg, nil
}

func applyRetrievalDefaults(r *RetrievalConfig) {
	if r.TopK <= 0 {
		r.TopK = DefaultTopK
	}
	if r.VectorWeight <= 0 {
		r.VectorWeight = DefaultVectorWeight
	}
	if r.LexicalWeight <= 0 {
		r.LexicalWeight = DefaultLexicalWeight
	}
	if r.RelevanceFloor <= 0 {
		r.RelevanceFloor = DefaultRelevanceFloor
	}
	if r.MaxContextTokens <= 0 {
		r.MaxContextTokens = DefaultMaxContextTokens
	}
	if r.ChunkSize <= 0 {
		r.ChunkSize = DefaultChunkSize
	}
	if r.ChunkOverlap <= 0 {
		r.ChunkOverlap = DefaultChunkOverlap
	}
	if r.MaxDocChunks <= 0 {
		r.MaxDocChunks = DefaultMaxDocChunks
	}
}
