package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Logger 全局日志实例
	Logger *logrus.Logger
	// logMu 初始化锁
	logMu sync.Mutex
)

// Config 日志配置
type Config struct {
	Level      string `yaml:"level"`       // 日志级别: debug, info, warn, error
	OutputFile string `yaml:"output_file"` // 日志文件路径（可选，为空则只输出到控制台）
	MaxSize    int    `yaml:"max_size"`    // 日志文件最大大小（MB）
	MaxBackups int    `yaml:"max_backups"` // 保留的旧日志文件数量
	MaxAge     int    `yaml:"max_age"`     // 保留旧日志文件的天数
	Compress   bool   `yaml:"compress"`    // 是否压缩旧日志文件
}

// Init 初始化日志系统
func Init(config Config) error {
	logMu.Lock()
	defer logMu.Unlock()

	logger := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	formatter := &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "06-01-02 15:04:05", // 格式: yy-mm-dd HH:MM:ss
		ForceColors:     true,
	}
	logger.SetFormatter(formatter)

	var writers []io.Writer
	writers = append(writers, os.Stdout)

	// 如果配置了日志文件，加上轮转的文件输出
	if config.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(config.OutputFile), 0755); err != nil {
			return err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.OutputFile,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		})
	}

	multiWriter := io.MultiWriter(writers...)
	logger.SetOutput(multiWriter)

	// 同步设置全局 logrus，保证零散使用 logrus.WithField 的地方也写入同一处
	logrus.SetOutput(multiWriter)
	logrus.SetLevel(level)
	logrus.SetFormatter(formatter)

	Logger = logger
	return nil
}

// InitDefault 使用默认配置初始化日志系统
func InitDefault() error {
	return Init(Config{
		Level:      "info",
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	})
}

// Get 返回全局实例；未初始化时退化为标准配置
func Get() *logrus.Logger {
	logMu.Lock()
	defer logMu.Unlock()
	if Logger == nil {
		Logger = logrus.New()
	}
	return Logger
}

// WithField 添加字段到日志上下文
func WithField(key string, value interface{}) *logrus.Entry {
	return Get().WithField(key, value)
}

// WithFields 添加多个字段到日志上下文
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Get().WithFields(fields)
}
