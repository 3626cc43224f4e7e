package util

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// DownloadImage 把生成结果URL镜像到本地目录（尽力而为，失败不影响任务结果）
func DownloadImage(imageURL, dir, taskID string, index int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("创建目录失败: %v", err)
	}
	// 创建输出文件
	filename := fmt.Sprintf("%s_%d.jpg", taskID, index)
	out, err := os.Create(filepath.Join(dir, filename))
	if err != nil {
		return fmt.Errorf("创建文件失败: %v", err)
	}
	defer out.Close()

	// 发送HTTP请求
	resp, err := http.Get(imageURL)
	if err != nil {
		return fmt.Errorf("下载请求失败: %v", err)
	}
	defer resp.Body.Close()

	// 检查响应状态码
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("下载失败，状态码: %d", resp.StatusCode)
	}

	// 将响应体写入文件
	_, err = io.Copy(out, resp.Body)
	if err != nil {
		return fmt.Errorf("写入文件失败: %v", err)
	}

	return nil
}

// SaveImage 把备用后端返回的图片字节落到本地目录，返回可访问的相对URL
func SaveImage(data []byte, dir, taskID string, index int) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("创建目录失败: %v", err)
	}
	filename := fmt.Sprintf("%s_%d.png", taskID, index)
	full := filepath.Join(dir, filename)
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("写入文件失败: %v", err)
	}
	return "/" + filepath.ToSlash(full), nil
}
