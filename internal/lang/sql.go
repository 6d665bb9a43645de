package lang

func init() {
	Register(&LanguageSpec{
		Language:        SQL,
		FileExtensions:  []string{".sql"},
		ModuleNodeTypes: []string{"program"},
		CommentNodeTypes: []string{
			"comment",
			"marginalia",
		},
	})
}
