package config

// Config holds the configuration of the application.
// Use LoadConfig to create a new instance.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"        yaml:"server"`
	Log           LogConfig           `mapstructure:"log"           yaml:"log"`
	Store         StoreConfig         `mapstructure:"store"         yaml:"store"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"     yaml:"embedding"`
	Inference     InferenceConfig     `mapstructure:"inference"     yaml:"inference"`
	Preprocessing PreprocessingConfig `mapstructure:"preprocessing" yaml:"preprocessing"`
	Search        SearchConfig        `mapstructure:"search"        yaml:"search"`
	Tracing       TracingConfig       `mapstructure:"tracing"       yaml:"tracing"`
}

type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port" validate:"gt=0,lte=65535"`
	// MaxRequestBodySize is in bytes. Base64 images are roughly 4/3 of their raw size.
	MaxRequestBodySize int64 `mapstructure:"max_request_body_size" yaml:"max_request_body_size" validate:"gt=0"`
	ShutdownTimeout    int   `mapstructure:"shutdown_timeout"      yaml:"shutdown_timeout"      validate:"gte=0"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

type StoreConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// PostgresConfig either carries a full DSN or the parts needed to build one.
type PostgresConfig struct {
	DSN          string `mapstructure:"dsn"            yaml:"dsn"`
	User         string `mapstructure:"user"           yaml:"user"`
	Password     string `mapstructure:"password"       yaml:"password"`
	Host         string `mapstructure:"host"           yaml:"host"`
	Port         int    `mapstructure:"port"           yaml:"port"           validate:"gt=0,lte=65535"`
	Database     string `mapstructure:"database"       yaml:"database"`
	SSLMode      string `mapstructure:"sslmode"        yaml:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns" yaml:"max_open_conns" validate:"gte=0"`
}

type EmbeddingConfig struct {
	Dimensions int `mapstructure:"dimensions" yaml:"dimensions" validate:"gt=0"`
}

// InferenceConfig points at a model server speaking the KServe v2 REST protocol
// (Triton, MLServer, KServe).
type InferenceConfig struct {
	ServerURL  string `mapstructure:"server_url"  yaml:"server_url"  validate:"required,url"`
	ModelName  string `mapstructure:"model_name"  yaml:"model_name"  validate:"required"`
	InputName  string `mapstructure:"input_name"  yaml:"input_name"  validate:"required"`
	OutputName string `mapstructure:"output_name" yaml:"output_name"`
	Timeout    int    `mapstructure:"timeout"     yaml:"timeout"     validate:"gt=0"`
	RetryMax   int    `mapstructure:"retry_max"   yaml:"retry_max"   validate:"gte=0"`
	CheckReady bool   `mapstructure:"check_ready" yaml:"check_ready"`
}

type PreprocessingConfig struct {
	Size         int     `mapstructure:"size"          yaml:"size"          validate:"gt=0"`
	ChannelOrder string  `mapstructure:"channel_order" yaml:"channel_order" validate:"oneof=rgb bgr"`
	Mean         float32 `mapstructure:"mean"          yaml:"mean"`
	Scale        float32 `mapstructure:"scale"         yaml:"scale"         validate:"gt=0"`
	// MaxPixels caps width*height of an uploaded image, checked from its header.
	MaxPixels int `mapstructure:"max_pixels" yaml:"max_pixels" validate:"gt=0"`
}

type SearchConfig struct {
	DefaultThreshold float32 `mapstructure:"default_threshold" yaml:"default_threshold"`
	DefaultLimit     int     `mapstructure:"default_limit"     yaml:"default_limit"     validate:"gt=0"`
	// Workers is the number of scan goroutines. 0 means GOMAXPROCS.
	Workers      int `mapstructure:"workers"        yaml:"workers"        validate:"gte=0"`
	MinChunkSize int `mapstructure:"min_chunk_size" yaml:"min_chunk_size" validate:"gt=0"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"      yaml:"enabled"`
	Endpoint    string `mapstructure:"endpoint"     yaml:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"     yaml:"insecure"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
}
