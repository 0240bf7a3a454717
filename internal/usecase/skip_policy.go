package usecase

import "strings"

// SkipPolicy решает, пропустить ли ссылку на изображение при индексации.
type SkipPolicy interface {
	Skip(ref string) bool
}

// DomainBlacklist пропускает ссылки, содержащие любую из подстрок.
type DomainBlacklist []string

func (d DomainBlacklist) Skip(ref string) bool {
	for _, s := range d {
		if s != "" && strings.Contains(ref, s) {
			return true
		}
	}

	return false
}
