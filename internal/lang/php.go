package lang

func init() {
	Register(&LanguageSpec{
		Language:        PHP,
		FileExtensions:  []string{".php", ".phtml"},
		Indexed:         true,
		ModuleNodeTypes: []string{"program"},
		ClassNodeTypes: []string{
			"class_declaration",
			"trait_declaration",
			"interface_declaration",
			"enum_declaration",
		},
		CommentNodeTypes: []string{"comment"},
		BlockNodeTypes:   []string{"compound_statement", "declaration_list", "colon_block"},
	})
}
