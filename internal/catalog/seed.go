package catalog

import "kodejudge/internal/models"

func strptr(s string) *string { return &s }

// Seed returns the built-in language set. Commands reference absolute paths
// inside the sandbox root filesystem.
func Seed() []models.Language {
	return []models.Language{
		{
			ID: 1, Name: "Python", Version: "3.13",
			SourceFileName: "main.py",
			RunCommand:     "/usr/local/bin/python3 main.py",
		},
		{
			ID: 2, Name: "Node.js", Version: "20",
			SourceFileName: "main.js",
			RunCommand:     "/usr/bin/node --jitless main.js",
		},
		{
			ID: 3, Name: "C", Version: "gcc 12.2.0",
			SourceFileName: "main.c",
			CompileCommand: strptr("/usr/bin/gcc *.c -o main"),
			RunCommand:     "./main",
		},
		{
			ID: 4, Name: "C++", Version: "g++ 12.2.0",
			SourceFileName: "main.cpp",
			CompileCommand: strptr("/usr/bin/g++ *.cpp -o main"),
			RunCommand:     "./main",
		},
		{
			ID: 5, Name: "Java", Version: "openjdk 17",
			SourceFileName: "Main.java",
			CompileCommand: strptr("/usr/lib/jvm/java-17-openjdk-amd64/bin/javac Main.java"),
			RunCommand:     "/usr/lib/jvm/java-17-openjdk-amd64/bin/java Main",
		},
		{
			ID: 6, Name: "C#", Version: "mono 6.12",
			SourceFileName: "Program.cs",
			CompileCommand: strptr("/usr/bin/csc -out:Program.exe *.cs"),
			RunCommand:     "/usr/bin/mono --gc=sgen Program.exe",
		},
		{
			ID: 7, Name: "Go", Version: "1.21",
			SourceFileName: "main.go",
			CompileCommand: strptr("/usr/local/go/bin/go build -o main *.go"),
			RunCommand:     "./main",
		},
		{
			ID: 8, Name: "Rust", Version: "1.90.0",
			SourceFileName: "main.rs",
			CompileCommand: strptr("/usr/local/cargo/bin/rustc --crate-type bin -o main main.rs"),
			RunCommand:     "./main",
		},
		{
			ID: 9, Name: "PHP", Version: "8.2",
			SourceFileName: "main.php",
			RunCommand:     "/usr/bin/php8.2 main.php",
		},
		{
			ID: 10, Name: "Lua", Version: "5.4",
			SourceFileName: "main.lua",
			RunCommand:     "/usr/bin/lua5.4 main.lua",
		},
		{
			ID: 11, Name: "Pascal", Version: "fpc 3.2.2",
			SourceFileName: "main.pas",
			CompileCommand: strptr("/usr/bin/x86_64-linux-gnu-fpc-3.2.2 -o./main *.pas"),
			RunCommand:     "./main",
		},
		{
			ID: 12, Name: "SQL", Version: "sqlite3 3.40",
			SourceFileName: "main.sql",
			RunCommand:     "/usr/bin/sqlite3 < main.sql",
		},
	}
}
