package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/John-Robertt/shotnamer/internal/infra/fsx"
	"github.com/John-Robertt/shotnamer/internal/vision"
)

// Store 提供 <root>/descriptions/ 下的模型描述缓存读写。
//
// 约束：
// - key 是送给模型的 JPEG 字节的 sha256（同一张图、同一模型只推理一次）
// - 不同模型的描述互不复用
// - 缓存位于用户缓存目录，dry-run 也可以写（不触碰截图目录）
type Store struct {
	Root string // 通常是 os.UserCacheDir()/shotnamer
}

func New(root string) Store {
	return Store{Root: filepath.Clean(strings.TrimSpace(root))}
}

// DefaultRoot 返回默认缓存根目录；平台无法确定用户缓存目录时 ok=false。
func DefaultRoot() (string, bool) {
	dir, err := os.UserCacheDir()
	if err != nil || dir == "" {
		return "", false
	}
	return filepath.Join(dir, "shotnamer"), true
}

// Key 计算图片数据的缓存 key。
func Key(jpeg []byte) string {
	sum := sha256.Sum256(jpeg)
	return hex.EncodeToString(sum[:])
}

// DescriptionPath 返回描述缓存文件的绝对路径。
func (s Store) DescriptionPath(model, key string) (string, error) {
	m, err := cleanModel(model)
	if err != nil {
		return "", err
	}
	if !keyRE.MatchString(key) {
		return "", fmt.Errorf("非法 key：%q", key)
	}
	return filepath.Join(s.Root, "descriptions", m, key+".txt"), nil
}

func (s Store) ReadDescription(model, key string) (string, bool, error) {
	path, err := s.DescriptionPath(model, key)
	if err != nil {
		return "", false, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(b), true, nil
}

func (s Store) WriteDescription(model, key, desc string) error {
	path, err := s.DescriptionPath(model, key)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(filepath.Dir(path), filepath.Base(path), []byte(desc))
}

var (
	keyRE          = regexp.MustCompile(`^[0-9a-f]{64}$`)
	modelInvalidRE = regexp.MustCompile(`[^a-z0-9._-]+`)
)

// cleanModel 把模型名变成安全的单级目录名（如 "org/model:tag" -> "org_model_tag"）。
func cleanModel(m string) (string, error) {
	m = strings.ToLower(strings.TrimSpace(m))
	m = strings.Trim(modelInvalidRE.ReplaceAllString(m, "_"), "._")
	if m == "" {
		return "", fmt.Errorf("model 不能为空")
	}
	return m, nil
}

// Describer 在 Next 前面加一层描述缓存。缓存读写失败只记日志，不影响推理。
type Describer struct {
	Store  Store
	Model  string
	Next   vision.Describer
	Logger *slog.Logger
}

var _ vision.Describer = (*Describer)(nil)

func (d *Describer) Describe(ctx context.Context, jpeg []byte) (string, error) {
	key := Key(jpeg)
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}

	if desc, ok, err := d.Store.ReadDescription(d.Model, key); err != nil {
		log.Warn("读取描述缓存失败", "error", err)
	} else if ok && strings.TrimSpace(desc) != "" {
		log.Info("命中描述缓存", "key", key[:12])
		return desc, nil
	}

	desc, err := d.Next.Describe(ctx, jpeg)
	if err != nil {
		return "", err
	}
	// 空描述不缓存：下次运行应重新推理。
	if strings.TrimSpace(desc) != "" {
		if err := d.Store.WriteDescription(d.Model, key, desc); err != nil {
			log.Warn("写入描述缓存失败", "error", err)
		}
	}
	return desc, nil
}
