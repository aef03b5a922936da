package storage

import (
	"fmt"
	"strings"
)

// DefaultImagePrefix is where product images land unless the uploader is configured otherwise.
const DefaultImagePrefix = "assets/products/images"

// ImageObjectPath composes <prefix>/<uploadID>/<fileName>. Images are uploaded
// before the product document exists, so the layout is keyed by upload only.
func ImageObjectPath(prefix, uploadID, fileName string) (string, error) {
	prefix, err := cleanPrefix(prefix)
	if err != nil {
		return "", err
	}
	uploadID, err = validateSegment("uploadID", uploadID)
	if err != nil {
		return "", err
	}
	fileName, err = validateSegment("fileName", fileName)
	if err != nil {
		return "", err
	}
	return prefix + "/" + uploadID + "/" + fileName, nil
}

func cleanPrefix(prefix string) (string, error) {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return DefaultImagePrefix, nil
	}
	for _, segment := range strings.Split(prefix, "/") {
		if _, err := validateSegment("prefix", segment); err != nil {
			return "", err
		}
	}
	return prefix, nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
