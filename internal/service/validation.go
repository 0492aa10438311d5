package service

import "strings"

// ValidCPF checks length, repeated digits and both check digits of a CPF
// given as 11 digits without punctuation.
func ValidCPF(cpf string) bool {
	if len(cpf) != 11 || strings.Count(cpf, cpf[:1]) == 11 {
		return false
	}
	digits := make([]int, 11)
	for i, r := range cpf {
		if r < '0' || r > '9' {
			return false
		}
		digits[i] = int(r - '0')
	}
	return digits[9] == checkDigit(digits[:9]) && digits[10] == checkDigit(digits[:10])
}

// checkDigit weights the digits from len+1 down to 2
func checkDigit(digits []int) int {
	sum := 0
	for i, d := range digits {
		sum += d * (len(digits) + 1 - i)
	}
	return sum * 10 % 11 % 10
}

// ValidEmail accepts local@provider.tld with exactly one dot in the domain
func ValidEmail(email string) bool {
	local, server, ok := strings.Cut(email, "@")
	if !ok || local == "" || strings.Contains(server, "@") {
		return false
	}
	if strings.Count(server, ".") != 1 {
		return false
	}
	provider, tld, _ := strings.Cut(server, ".")
	return provider != "" && tld != ""
}
