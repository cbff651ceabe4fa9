package brdoc

import "testing"

func TestValidCPF(t *testing.T) {
	cases := map[string]bool{
		"529.982.247-25": true,
		"52998224725":    true,
		"111.444.777-35": true,
		"529.982.247-24": false,
		"111.111.111-11": false,
		"1234567890":     false,
		"":               false,
	}
	for input, want := range cases {
		if got := ValidCPF(input); got != want {
			t.Errorf("ValidCPF(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestValidCNPJ(t *testing.T) {
	cases := map[string]bool{
		"11.222.333/0001-81": true,
		"34028316000103":     true,
		"11.222.333/0001-80": false,
		"00000000000000":     false,
		"1122233300018":      false,
	}
	for input, want := range cases {
		if got := ValidCNPJ(input); got != want {
			t.Errorf("ValidCNPJ(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestClassifyDocument(t *testing.T) {
	if ClassifyDocument("529.982.247-25") != KindCPF {
		t.Fatal("expected CPF")
	}
	if ClassifyDocument("11.222.333/0001-81") != KindCNPJ {
		t.Fatal("expected CNPJ")
	}
	if ClassifyDocument("123") != KindUnknown {
		t.Fatal("expected unknown")
	}
}

func TestCEP(t *testing.T) {
	if !ValidCEP("01310-100") || !ValidCEP("01310100") {
		t.Fatal("expected valid CEP")
	}
	if ValidCEP("0131010") || ValidCEP("01310-10a") || ValidCEP("013.10-100") {
		t.Fatal("expected invalid CEP")
	}
	if got := NormalizeCEP(" 01310-100 "); got != "01310100" {
		t.Fatalf("unexpected normalized CEP %q", got)
	}
	if NormalizeCEP("123") != "" {
		t.Fatal("invalid CEP must normalize to empty")
	}
}

func TestUFAndNCM(t *testing.T) {
	if !ValidUF("sp") || !ValidUF("DF") || ValidUF("XX") {
		t.Fatal("unexpected UF result")
	}
	if !ValidNCM("6109.10.00") || !ValidNCM("61091000") || ValidNCM("610910") {
		t.Fatal("unexpected NCM result")
	}
}

func TestDigits(t *testing.T) {
	if got := Digits("(11) 98765-4321"); got != "11987654321" {
		t.Fatalf("unexpected digits %q", got)
	}
}
