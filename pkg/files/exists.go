package file

import "os"

func Exists(file string) bool {
	stats, err := os.Stat(file)
	return !os.IsNotExist(err) && (stats != nil && !stats.IsDir())
}

func DirExists(file string) bool {
	stats, err := os.Stat(file)
	return !os.IsNotExist(err) && (stats != nil && stats.IsDir())
}

// RemoveIfExists deletes a file or directory tree. A missing path is not an error.
func RemoveIfExists(path string) (bool, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}
	if err := os.RemoveAll(path); err != nil {
		return false, err
	}
	return true, nil
}
